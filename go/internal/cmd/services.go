package main

import (
	"context"
	"fmt"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/broadcast"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/engine"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/gateway"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Services holds the wired engine components.
type Services struct {
	Dispatcher *broadcast.Dispatcher
	Manager    *engine.Manager
	Scheduler  *engine.Scheduler
	ConnMgr    *gateway.ConnectionManager
	Forwarder  *gateway.EventForwarder
	Handler    *gateway.Handler
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	// Transport layer -> dispatcher -> engine -> gateway.
	var transport broadcast.Transport
	switch cfg.Transport.Kind {
	case "memory":
		transport = broadcast.NewMemoryTransport()
		log.Info().Msg("using in-process transport")
	case "nats":
		natsCfg := broadcast.DefaultNATSTransportConfig()
		natsCfg.URL = cfg.Transport.URL
		t, err := broadcast.NewNATSTransport(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up NATS transport: %w", err)
		}
		transport = t
		log.Info().Str("url", cfg.Transport.URL).Msg("using NATS transport")
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}

	dispatchCfg := broadcast.DefaultDispatcherConfig()
	dispatchCfg.SubjectPrefix = cfg.Transport.SubjectPrefix
	dispatchCfg.MaxRetries = cfg.Game.PublishMaxRetries
	dispatchCfg.RetryDelay = cfg.publishRetryDelay()
	dispatchCfg.SubscriberSize = cfg.Game.SubscriberQueue
	dispatcher := broadcast.NewDispatcher(transport, dispatchCfg, clock)

	// Persistence is best-effort: without a database the engine runs
	// in-memory only and mid-game recovery is unavailable.
	var st store.Store
	if getEnvAsBool("DB_DISABLED", false) {
		st = store.NewMemoryStore()
		log.Info().Msg("database disabled, using in-memory session store")
	} else {
		db, err := setupDatabase()
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable; sessions will not survive a host restart")
			st = store.NewMemoryStore()
		} else {
			pg := store.NewPostgresStore(db)
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("failed to ensure schema: %w", err)
			}
			st = pg
		}
	}

	manager := engine.NewManager(clock, dispatcher, st)
	scheduler := engine.NewScheduler(manager, clock)

	connMgr := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), clock)
	forwarder := gateway.NewEventForwarder(dispatcher, connMgr)
	handler := gateway.NewHandler(ctx, manager, connMgr, forwarder)

	return &Services{
		Dispatcher: dispatcher,
		Manager:    manager,
		Scheduler:  scheduler,
		ConnMgr:    connMgr,
		Forwarder:  forwarder,
		Handler:    handler,
	}, nil
}
