package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
)

// runCommand runs pipelines once.
type runCommand struct {
	flags     *globalFlags
	pipelines []string
}

func (cmd *runCommand) run(_ *kingpin.ParseContext) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	failed := 0
	for _, ref := range cmd.pipelines {
		p, err := rt.pipelines.Resolve(ref)
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", ref, err)
		}
		result, err := rt.pipelines.RunPipeline(ctx, p.ID)
		if result == nil {
			return err
		}
		printResult(p.Name, result)
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pipelines failed", failed, len(cmd.pipelines))
	}
	return nil
}

func addRunCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &runCommand{flags: flags}
	c := app.Command("run", "Run pipelines once, in order.").Action(cmd.run)
	c.Arg("pipeline", "Pipeline names or IDs.").Required().StringsVar(&cmd.pipelines)
}
