package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads rows from a local CSV file. The header order is the schema order
// and each column gets the widest storage type of its cells.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*metadata.FieldList, error) {
	fields, _, err := loadCSV(cfg)
	return fields, err
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Row, <-chan error) {
	out := make(chan etl.Row, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		_, rows, err := loadCSV(cfg)
		if err != nil {
			errCh <- err
			return
		}
		for _, row := range rows {
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

// loadCSV parses the file into a typed schema and rows aligned with it.
func loadCSV(cfg etl.SourceConfig) (*metadata.FieldList, []etl.Row, error) {
	headers, records, err := readCSVFile(cfg)
	if err != nil {
		return nil, nil, err
	}

	types := make([]metadata.StorageType, len(headers))
	for _, rec := range records {
		for j := range headers {
			if j < len(rec) {
				types[j] = metadata.WidenStorageType(types[j], storageTypeOf(parseScalar(rec[j])))
			}
		}
	}
	fields, err := buildFields(headers, func(i int) metadata.StorageType { return types[i] })
	if err != nil {
		return nil, nil, fmt.Errorf("csv header: %w", err)
	}
	for i := range headers {
		if !types[i].IsSet() {
			types[i] = metadata.StorageString
		}
	}

	rows := make([]etl.Row, len(records))
	for i, rec := range records {
		row := make(etl.Row, len(headers))
		for j := range headers {
			if j < len(rec) {
				row[j] = convertScalar(rec[j], types[j])
			}
		}
		rows[i] = row
	}
	return fields, rows, nil
}

func readCSVFile(cfg etl.SourceConfig) ([]string, [][]string, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Configure delimiter.
	if delim := []rune(cfg.String("delimiter")); len(delim) > 0 {
		reader.Comma = delim[0]
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	var headers []string
	var rows [][]string
	if cfg.Bool("hasHeader", true) {
		headers = records[0]
		rows = records[1:]
	} else {
		// Generate column names: col_1, col_2, ...
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		rows = records
	}

	return headers, rows, nil
}
