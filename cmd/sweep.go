package cmd

import (
	"github.com/psds-microservice/dispatch-service/internal/application"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one auto-assignment sweep against the database and exit",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := application.NewLogger(cfg)
	// Restore must not sweep on its own so the result below is complete.
	rt, err := application.Bootstrap(cmd.Context(), cfg, log.Logger, dispatch.WithAutoAssign(false))
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.Engine.Sweep(cmd.Context())
	for _, a := range res.Assigned {
		log.Info("sweep: assigned", "ticket_id", a.TicketID, "agent_id", a.AgentID)
	}
	log.Info("sweep: done", "assigned", len(res.Assigned), "still_queued", res.Skipped, "failed", res.Failed)
	return nil
}
