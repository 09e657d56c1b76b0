package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/huddle"
	"github.com/BioHazard786/huddle/internal/signaling"
)

// ConnectionContext is the signaling side of one `huddle join`.
type ConnectionContext struct {
	Transport  signaling.Transport
	Dispatcher *signaling.Dispatcher
	Config     *config.Config

	// Manual is set when the polled transport is in use.
	Manual *signaling.Manual
	store  signaling.Store
}

// NewConnectionContext connects to the relay, or to the manual signaling
// log when cfg.ManualStore is set, and starts dispatching.
func NewConnectionContext(ctx context.Context, cfg *config.Config, roomID string, logger *slog.Logger) (*ConnectionContext, error) {
	cc := &ConnectionContext{Config: cfg}

	if cfg.ManualStore != "" {
		store, err := signaling.OpenStore(ctx, cfg.ManualStore)
		if err != nil {
			return nil, huddle.NewError("open signaling store", err)
		}
		m := signaling.NewManual(store, roomID, cfg.UserID, logger)
		if err := m.Connect(ctx); err != nil {
			store.Close()
			return nil, huddle.NewError("connect to signaling store", err)
		}
		cc.Manual, cc.Transport, cc.store = m, m, store
		if cfg.PollInterval > 0 {
			go m.AutoPoll(ctx, cfg.PollInterval)
		}
	} else {
		client := signaling.NewClient(cfg.WebSocketURL,
			signaling.WithToken(cfg.Token),
			signaling.WithLogger(logger),
		)
		if err := client.Connect(ctx); err != nil {
			return nil, huddle.NewError("connect to server", err)
		}
		cc.Transport = client
	}

	cc.Dispatcher = signaling.NewDispatcher(cc.Transport, logger)
	go cc.Dispatcher.Start()
	return cc, nil
}

// Poll reads the manual signaling log once. It is nil for the relay.
func (c *ConnectionContext) Poll() func(context.Context) error {
	if c.Manual == nil {
		return nil
	}
	return func(ctx context.Context) error {
		_, err := c.Manual.Poll(ctx)
		return err
	}
}

func (c *ConnectionContext) Close() {
	if c.Transport != nil {
		c.Transport.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, huddle.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}
