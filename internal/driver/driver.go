// Package driver runs periodic maintenance managers on a fixed
// cadence. The session reaper is the only manager today.
package driver

import (
	"context"
	"time"
)

const (
	DefaultSweepInterval = time.Hour
)

type Manager interface {
	Tick(context.Context) error
}

type SweepDriver struct {
	interval time.Duration
	managers []Manager
}

func NewSweepDriver(managers []Manager, opts ...SweepDriverOpt) *SweepDriver {
	d := &SweepDriver{
		interval: DefaultSweepInterval,
		managers: managers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *SweepDriver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.Tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (d *SweepDriver) Tick(ctx context.Context) error {
	for _, m := range d.managers {
		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
