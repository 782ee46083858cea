package driver

import "time"

type SweepDriverOpt func(*SweepDriver)

func WithSweepInterval(interval time.Duration) SweepDriverOpt {
	return func(d *SweepDriver) {
		d.interval = interval
	}
}
