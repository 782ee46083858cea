package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-bastion/internal/mapgen"
	"github.com/pixil98/go-bastion/internal/session"
)

type GameConfig struct {
	SizeClass       string `json:"size_class,omitempty"`
	TickRate        int    `json:"tick_rate,omitempty"`
	StartingBalance int    `json:"starting_balance,omitempty"`
	StartingLives   int    `json:"starting_lives,omitempty"`
	MaxPlayers      int    `json:"max_players,omitempty"`
	RetentionWindow string `json:"retention_window,omitempty"`
	SweepInterval   string `json:"sweep_interval,omitempty"`
}

func (c *GameConfig) validate() error {
	el := errors.NewErrorList()

	switch c.SizeClass {
	case "", string(mapgen.SizeSmall), string(mapgen.SizeMedium), string(mapgen.SizeLarge):
	default:
		el.Add(fmt.Errorf("unknown size_class: %s", c.SizeClass))
	}
	if c.TickRate < 0 {
		el.Add(fmt.Errorf("tick_rate must not be negative"))
	}
	if c.RetentionWindow != "" {
		if _, err := time.ParseDuration(c.RetentionWindow); err != nil {
			el.Add(fmt.Errorf("parsing retention_window: %w", err))
		}
	}
	if c.SweepInterval != "" {
		if _, err := time.ParseDuration(c.SweepInterval); err != nil {
			el.Add(fmt.Errorf("parsing sweep_interval: %w", err))
		}
	}

	return el.Err()
}

// CoordinatorConfig folds the file values over the defaults; zero
// values keep the default.
func (c *GameConfig) CoordinatorConfig() session.Config {
	cfg := session.DefaultConfig()

	if c.SizeClass != "" {
		cfg.SizeClass = mapgen.SizeClass(c.SizeClass)
	}
	if c.TickRate > 0 {
		cfg.TickRate = c.TickRate
	}
	if c.StartingBalance > 0 {
		cfg.StartingBalance = c.StartingBalance
	}
	if c.StartingLives > 0 {
		cfg.StartingLives = c.StartingLives
	}
	if c.MaxPlayers > 0 {
		cfg.MaxPlayers = c.MaxPlayers
	}
	if c.RetentionWindow != "" {
		if d, err := time.ParseDuration(c.RetentionWindow); err == nil {
			cfg.RetentionWindow = d
		}
	}

	return cfg
}
