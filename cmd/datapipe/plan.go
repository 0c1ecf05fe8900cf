package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// planCommand prints the fields of a pipeline at every stage without
// reading rows.
type planCommand struct {
	flags    *globalFlags
	pipeline string
}

func (cmd *planCommand) run(_ *kingpin.ParseContext) error {
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
	plan, err := rt.pipelines.PlanPipeline(ctx, p.ID)
	if err != nil {
		return err
	}

	printFields(fmt.Sprintf("Source (%s)", p.SourceType), plan.Source)
	for i, stage := range plan.Stages {
		printFields(fmt.Sprintf("Stage %d (%s)", i+1, p.Transforms[i].Type), stage)
	}
	printFields(fmt.Sprintf("Output (%s)", p.Target), plan.Output)
	return nil
}

func addPlanCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &planCommand{flags: flags}
	c := app.Command("plan", "Show the fields of a pipeline at every stage.").Action(cmd.run)
	c.Arg("pipeline", "Pipeline name or ID.").Required().StringVar(&cmd.pipeline)
}
