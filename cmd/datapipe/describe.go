package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
)

// describeCommand prints a pipeline, the fields it last wrote and its
// recent runs.
type describeCommand struct {
	flags    *globalFlags
	pipeline string
	dump     bool
}

func (cmd *describeCommand) run(_ *kingpin.ParseContext) error {
	ctx := context.Background()
	rt, err := setup(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.pipelines.Resolve(cmd.pipeline)
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", cmd.pipeline, err)
	}
	fields, err := rt.pipelines.OutputFields(p.ID)
	if err != nil {
		return err
	}
	runs, err := rt.pipelines.ListRunLogs(p.ID)
	if err != nil {
		return err
	}

	if cmd.dump {
		spew.Dump(p, fields.Slice(), runs)
		return nil
	}

	bold.Printf("Pipeline %s\n", p.Name)
	fmt.Printf("\tid: %s\n", p.ID)
	fmt.Printf("\tsource: %s\n", p.SourceType)
	fmt.Printf("\ttarget: %s (%s)\n", p.Target, p.SyncMode)
	if p.TriggerConfig != "" {
		fmt.Printf("\ttrigger: %s %q (enabled: %t)\n", p.TriggerType, p.TriggerConfig, p.Enabled)
	} else {
		fmt.Printf("\ttrigger: %s\n", p.TriggerType)
	}
	fmt.Printf("\ttransforms: %d\n", len(p.Transforms))
	fmt.Printf("\tlast run: %s, %s\n", formatWhen(p.LastRunAt), colorStatus(p.LastStatus))

	printFields("Output fields", fields)

	bold.Println("Recent runs:")
	if len(runs) == 0 {
		fmt.Println("\t(none)")
	}
	for _, r := range runs {
		fmt.Printf("\t%s  %s  read %s, wrote %s, took %s\n",
			formatWhen(r.StartedAt),
			colorStatus(r.Status),
			humanize.Comma(int64(r.RowsRead)),
			humanize.Comma(int64(r.RowsWritten)),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
	}
	return nil
}

func addDescribeCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &describeCommand{flags: flags}
	c := app.Command("describe", "Show a pipeline, the fields it last wrote and its recent runs.").Action(cmd.run)
	c.Arg("pipeline", "Pipeline name or ID.").Required().StringVar(&cmd.pipeline)
	c.Flag("dump", "Dump the raw pipeline, fields and runs.").BoolVar(&cmd.dump)
}
