package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/psds-microservice/dispatch-service/internal/config"
	"github.com/psds-microservice/dispatch-service/internal/database"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/kafka"
	"github.com/psds-microservice/dispatch-service/internal/logging"
	"github.com/psds-microservice/dispatch-service/internal/searchindex"
	"github.com/psds-microservice/dispatch-service/internal/store"
)

const ServiceName = "dispatch-service"

// Runtime is the wired dispatch core shared by the API server and the
// one-shot commands.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store
	Engine *dispatch.Engine

	closers []func() error
}

// NewLogger builds the service logger from cfg and installs it as the
// slog default.
func NewLogger(cfg *config.Config) *logging.Logger {
	l := logging.NewLogger(cfg.LogFormat, cfg.LogLevel, os.Stdout, ServiceName)
	l.SetAsDefault()
	return l
}

// Bootstrap opens and migrates the database, connects the event sinks and
// restores the engine from the store. opts are applied after the options
// derived from cfg.
func Bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...dispatch.Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	db, err := database.Open(cfg.DB.Driver, cfg.DSN(), log)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: log, Store: store.New(db)}
	rt.closers = append(rt.closers, rt.Store.Close)

	if err := database.Migrate(cfg, db, log); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sink := rt.sinks(ctx)
	all := append([]dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithSink(sink),
		dispatch.WithDefaultCapacity(cfg.Dispatch.DefaultCapacity),
		dispatch.WithAutoAssign(cfg.Dispatch.AutoAssign),
		dispatch.WithEventBuffer(cfg.Dispatch.EventBuffer),
	}, opts...)
	rt.Engine = dispatch.New(rt.Store, all...)
	// The engine drains its events before the sinks close.
	rt.closers = append([]func() error{rt.Engine.Stop}, rt.closers...)

	if err := rt.Engine.Restore(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("restore: %w", err)
	}
	return rt, nil
}

// sinks connects every configured event sink. A sink that cannot be reached
// at startup is skipped with a warning.
func (rt *Runtime) sinks(ctx context.Context) events.Sink {
	cfg := rt.Config
	out := events.Multi{events.LogSink{Logger: rt.Logger}}

	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, cfg.KafkaTopicDispatch)
		out = append(out, producer)
		rt.closers = append(rt.closers, producer.Close)
		rt.Logger.Info("events: kafka enabled", "brokers", brokers, "topic", cfg.KafkaTopicDispatch)
	}
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			rt.Logger.Warn("events: redis unavailable, stream disabled", "error", err)
		} else {
			out = append(out, events.NewRedisStream(client, cfg.RedisStream, 10000))
			rt.closers = append(rt.closers, client.Close)
			rt.Logger.Info("events: redis stream enabled", "stream", cfg.RedisStream)
		}
	}
	if search := searchindex.NewClient(cfg.SearchServiceURL); search.Enabled() {
		out = append(out, search)
		rt.Logger.Info("events: search indexing enabled", "url", cfg.SearchServiceURL)
	}
	return out
}

// Close stops the engine and releases its connections.
func (rt *Runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
