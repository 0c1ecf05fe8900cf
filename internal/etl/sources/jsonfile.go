package sources

import (
	"context"
	"fmt"
	"os"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// ── JSON File Source ────────────────────────────────────────
// Reads rows from a local JSON file holding an array of objects.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the JSON file"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Required: false, Help: "Dot-separated path to the array (e.g., 'data.items'). Leave empty if root is an array."},
		},
	}
}

func (s *jsonFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*metadata.FieldList, error) {
	objects, err := readJSONFile(cfg)
	if err != nil {
		return nil, err
	}
	return objectFields(objects)
}

func (s *jsonFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Row, <-chan error) {
	return streamObjects(ctx, func() ([]map[string]any, error) { return readJSONFile(cfg) })
}

// streamObjects loads objects, infers their schema and emits them as rows.
func streamObjects(ctx context.Context, load func() ([]map[string]any, error)) (<-chan etl.Row, <-chan error) {
	out := make(chan etl.Row, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		objects, err := load()
		if err != nil {
			errCh <- err
			return
		}
		fields, err := objectFields(objects)
		if err != nil {
			errCh <- err
			return
		}
		for _, row := range objectRows(fields, objects) {
			select {
			case out <- row:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

func readJSONFile(cfg etl.SourceConfig) ([]map[string]any, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	raw, err = navigatePath(raw, cfg.String("dataPath"))
	if err != nil {
		return nil, err
	}
	return toObjects(raw)
}
