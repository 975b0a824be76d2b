package cmd

import (
	"errors"
	"fmt"

	"github.com/psds-microservice/dispatch-service/internal/application"
	"github.com/psds-microservice/dispatch-service/internal/errs"
	"github.com/psds-microservice/dispatch-service/internal/roster"
	"github.com/spf13/cobra"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register the agents listed in a YAML roster",
	Long: `Register the agents listed in a YAML roster. Agents whose id or email
is already registered are skipped, so the command can be re-run.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "roster.yaml", "roster file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	agents, err := roster.Load(seedFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := application.NewLogger(cfg)
	rt, err := application.Bootstrap(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	var created, skipped int
	for _, a := range agents {
		registered, err := rt.Engine.RegisterAgent(cmd.Context(), a)
		var ve *errs.ValidationError
		switch {
		case err == nil:
			created++
			log.Info("seed: agent registered", "agent_id", registered.ID, "email", registered.Email)
		case errors.As(err, &ve) && (ve.Field == "id" || ve.Field == "email") && ve.Reason == "already registered":
			skipped++
			log.Info("seed: agent exists, skipped", "email", a.Email)
		default:
			log.LogError("seed: register agent", err, "email", a.Email)
			return fmt.Errorf("seed %s: %w", a.Email, err)
		}
	}
	log.Info("seed: done", "created", created, "skipped", skipped)
	return nil
}
