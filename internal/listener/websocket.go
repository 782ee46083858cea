// Package listener is the websocket transport: it accepts client
// connections, feeds decoded envelopes to the session coordinator, and
// pushes broker-delivered events back out. It knows nothing about game
// rules; bad input becomes an error event, never a dropped connection.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixil98/go-log"

	"github.com/pixil98/go-bastion/internal/messaging"
	"github.com/pixil98/go-bastion/internal/protocol"
)

// SessionHandler is the slice of the coordinator the transport drives.
type SessionHandler interface {
	CreateSession(ctx context.Context, connID string, req protocol.CreateSessionRequest) (*protocol.JoinResponse, error)
	Join(ctx context.Context, connID string, req protocol.JoinRequest) (*protocol.JoinResponse, error)
	Rejoin(ctx context.Context, connID string, req protocol.JoinRequest) (*protocol.JoinResponse, error)
	StartGame(ctx context.Context, connID string) error
	Pause(ctx context.Context, connID string) error
	Resume(ctx context.Context, connID string) error
	SaveSession(ctx context.Context, connID string) error
	PlaceStructure(ctx context.Context, connID string, req protocol.PlaceStructureRequest) error
	UpgradeStructure(ctx context.Context, connID string, req protocol.UpgradeStructureRequest) error
	SellStructure(ctx context.Context, connID string, req protocol.SellStructureRequest) error
	Chat(connID string, text string) error
	ListLobbies(ctx context.Context, connID string) error
	HandleDisconnect(connID string)
}

type WebsocketListener struct {
	port    uint16
	handler SessionHandler
	broker  messaging.Broker

	upgrader websocket.Upgrader
}

func NewWebsocketListener(port uint16, handler SessionHandler, broker messaging.Broker) *WebsocketListener {
	return &WebsocketListener{
		port:    port,
		handler: handler,
		broker:  broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Game clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (l *WebsocketListener) Start(ctx context.Context) error {
	// Connections share one context so shutdown cancels them together.
	connCtx, cancelConns := context.WithCancel(log.SetLogger(context.Background(), log.GetLogger(ctx)))
	defer cancelConns()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		l.serveConn(connCtx, w, r)
	})

	svr := &http.Server{
		Addr:    fmt.Sprintf(":%d", l.port),
		Handler: mux,
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = svr.Shutdown(shutCtx)
			cancelConns()
		case <-done:
		}
	}()

	log.GetLogger(ctx).Infof("websocket listener on :%d", l.port)

	err := svr.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d is already in use (another server running?)", l.port)
		}
		return fmt.Errorf("serving websocket on port %d: %w", l.port, err)
	}
	return nil
}

func (l *WebsocketListener) serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger(ctx)

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("upgrading connection: %s", err)
		return
	}

	c := newClient(conn, l.handler, l.broker, logger)
	c.run(ctx)
}
