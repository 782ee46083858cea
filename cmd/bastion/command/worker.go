package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pixil98/go-service"

	"github.com/pixil98/go-bastion/internal/driver"
	"github.com/pixil98/go-bastion/internal/messaging"
	"github.com/pixil98/go-bastion/internal/session"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// The embedded broker carries all room traffic.
	nats, err := cfg.Nats.BuildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	st, err := cfg.Store.BuildStore(context.Background())
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	coordinator := session.NewCoordinator(
		cfg.Game.CoordinatorConfig(),
		st,
		messaging.NewRoomPublisher(nats),
	)

	ws := cfg.Listener.BuildListener(coordinator, nats)

	// The sweep driver runs the retention reaper.
	var driverOpts []driver.SweepDriverOpt
	if cfg.Game.SweepInterval != "" {
		d, err := time.ParseDuration(cfg.Game.SweepInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing sweep_interval: %w", err)
		}
		driverOpts = append(driverOpts, driver.WithSweepInterval(d))
	}
	sweeper := driver.NewSweepDriver([]driver.Manager{coordinator}, driverOpts...)

	return service.WorkerList{
		"nats":     nats,
		"listener": ws,
		"driver":   sweeper,
	}, nil
}
