package command

import (
	"github.com/pixil98/go-errors"
)

type Config struct {
	Listener ListenerConfig `json:"listener"`
	Store    StoreConfig    `json:"store"`
	Nats     NatsConfig     `json:"nats"`
	Game     GameConfig     `json:"game"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	el.Add(c.Listener.validate())
	el.Add(c.Store.validate())
	el.Add(c.Nats.validate())
	el.Add(c.Game.validate())

	return el.Err()
}
