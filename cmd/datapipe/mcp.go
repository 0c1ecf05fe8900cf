package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"

	mcpserver "datapipe/internal/mcp"
	"datapipe/internal/service"
)

// mcpCommand serves the MCP tools on stdin/stdout.
type mcpCommand struct {
	flags           *globalFlags
	approveRuns     bool
	approvalTimeout time.Duration
}

func (cmd *mcpCommand) run(_ *kingpin.ParseContext) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	approval := mcpserver.NewApprovalQueue(service.LogEmitter{Logger: log.With(rt.logger, "component", "approval")}, cmd.approvalTimeout)
	approval.AutoApprove = cmd.approveRuns

	srv := mcpserver.New(mcpserver.Deps{
		Pipelines:   rt.pipelines,
		Connections: rt.connections,
		Approval:    approval,
		Logger:      rt.logger,
		Version:     version,
	})
	return srv.ServeStdio(ctx)
}

func addMCPCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &mcpCommand{flags: flags}
	c := app.Command("mcp", "Serve the MCP tools on stdin/stdout.").Action(cmd.run)
	c.Flag("approve-runs", "Run pipelines without asking for approval.").BoolVar(&cmd.approveRuns)
	c.Flag("approval-timeout", "How long a run waits for approval.").Default("2m").DurationVar(&cmd.approvalTimeout)
}
