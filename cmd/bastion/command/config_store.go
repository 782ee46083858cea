package command

import (
	"context"
	"fmt"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-bastion/internal/store"
)

type StoreBackend int

const (
	StoreBackendFile StoreBackend = iota
	StoreBackendPostgres
)

func (sb *StoreBackend) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*sb = StoreBackendFile
	case "postgres":
		*sb = StoreBackendPostgres
	default:
		return fmt.Errorf("unknown store backend: %s", text)
	}
	return nil
}

type StoreConfig struct {
	Backend StoreBackend `json:"backend"`
	// Path is the session directory for the file backend.
	Path string `json:"path,omitempty"`
	// DSN is the connection string for the postgres backend.
	DSN string `json:"dsn,omitempty"`
}

func (c *StoreConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Backend {
	case StoreBackendFile:
		if c.Path == "" {
			el.Add(fmt.Errorf("path is required for the file backend"))
		}
	case StoreBackendPostgres:
		if c.DSN == "" {
			el.Add(fmt.Errorf("dsn is required for the postgres backend"))
		}
	}

	return el.Err()
}

func (c *StoreConfig) BuildStore(ctx context.Context) (store.SessionStore, error) {
	switch c.Backend {
	case StoreBackendFile:
		return store.NewFileStore(c.Path)
	case StoreBackendPostgres:
		pg, err := store.NewPgStoreFromDSN(c.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensuring schema: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %v", c.Backend)
	}
}
