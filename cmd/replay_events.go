package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/application"
	"github.com/psds-microservice/dispatch-service/internal/database"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/kafka"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/searchindex"
	"github.com/psds-microservice/dispatch-service/internal/store"
	"github.com/spf13/cobra"
)

const replayPageSize = 200

var replayEventsCmd = &cobra.Command{
	Use:   "replay-events",
	Short: "Republish every ticket as a ticket.updated event. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReplayEvents,
}

func runReplayEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := application.NewLogger(cfg)
	db, err := database.Open(cfg.DB.Driver, cfg.DSN(), log.Logger)
	if err != nil {
		return err
	}
	st := store.New(db)
	defer st.Close()

	var publish func(context.Context, *model.Ticket) error
	switch brokers := kafka.ParseBrokers(cfg.KafkaBrokers); {
	case len(brokers) > 0:
		log.Info("replay-events: using Kafka", "topic", cfg.KafkaTopicDispatch)
		producer := kafka.NewProducer(brokers, cfg.KafkaTopicDispatch)
		defer producer.Close()
		publish = func(ctx context.Context, t *model.Ticket) error {
			return producer.Publish(ctx, events.Event{
				Type:     events.TicketUpdated,
				TicketID: t.ID,
				AgentID:  t.AgentID(),
				Status:   t.Status,
				Priority: t.Priority,
				At:       t.UpdatedAt,
				Ticket:   t,
			})
		}
	case cfg.SearchServiceURL != "":
		log.Info("replay-events: using HTTP search indexing", "url", cfg.SearchServiceURL)
		publish = searchindex.NewClient(cfg.SearchServiceURL).IndexTicket
	default:
		log.Warn("replay-events: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set, nothing to do")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	var sent, failed int
	for offset := 0; ; offset += replayPageSize {
		page, total, err := st.ListTickets(ctx, dispatch.TicketFilter{}, replayPageSize, offset)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		for i := range page {
			t := &page[i]
			if err := publish(ctx, t); err != nil {
				failed++
				log.LogError("replay-events: publish", err, "ticket_id", t.ID)
				continue
			}
			sent++
		}
		log.Info("replay-events: progress", "processed", offset+len(page), "total", total)
		if len(page) < replayPageSize {
			break
		}
	}
	log.Info("replay-events: done", "sent", sent, "failed", failed)
	return nil
}
