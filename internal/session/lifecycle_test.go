package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/sim"
	"github.com/pixil98/go-bastion/internal/store"
)

func TestHandleDisconnect_EmptyLobbyIsDeleted(t *testing.T) {
	c, st, pub := newTestCoordinator(t)
	host := createSession(t, c, "conn1", "Ana")

	c.HandleDisconnect("conn1")

	if c.lookup(host.SessionCode) != nil {
		t.Fatal("expected the lobby to leave the registry")
	}
	if _, err := st.Load(context.Background(), host.SessionCode); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected the lobby document to be deleted, got %v", err)
	}
	rec, ok := pub.lastBroadcast(protocol.EvPlayerLeft)
	if !ok {
		t.Fatal("expected a playerLeft broadcast")
	}
	testutil.AssertEqual(t, "connected flag", rec.payload.(protocol.PlayerInfo).Connected, false)
}

func TestHandleDisconnect_PartialRoomStaysLive(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	if _, err := c.Join(ctx, "conn2", protocol.JoinRequest{SessionCode: host.SessionCode, DisplayName: "Ben"}); err != nil {
		t.Fatalf("joining: %v", err)
	}
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}

	c.HandleDisconnect("conn2")

	s := c.lookup(host.SessionCode)
	if s == nil {
		t.Fatal("expected the session to stay registered")
	}
	s.mu.Lock()
	testutil.AssertEqual(t, "status", s.doc.Status, store.StatusPlaying)
	testutil.AssertEqual(t, "remaining conns", s.connectedCount(), 1)
	s.mu.Unlock()
}

func TestSuspend(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}

	s := c.lookup(host.SessionCode)
	s.mu.Lock()
	delete(s.conns, "conn1")
	s.mu.Unlock()

	c.suspend(s)

	if c.lookup(host.SessionCode) != nil {
		t.Fatal("expected the suspended session to leave the registry")
	}
	doc, err := st.Load(ctx, host.SessionCode)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	testutil.AssertEqual(t, "status", doc.Status, store.StatusSuspended)
	if doc.SuspendedAt == nil {
		t.Fatal("expected a suspension timestamp")
	}
	testutil.AssertEqual(t, "balance survives", doc.Balance, 250)
	testutil.AssertEqual(t, "lives survive", doc.Lives, 20)
}

func TestSuspend_RejoinWinsTheRace(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}

	// Someone reconnected between the disconnect and the suspension
	// goroutine getting scheduled; the suspension must back off.
	s := c.lookup(host.SessionCode)
	c.suspend(s)

	if c.lookup(host.SessionCode) == nil {
		t.Fatal("expected the occupied session to stay registered")
	}
	s.mu.Lock()
	testutil.AssertEqual(t, "status", s.doc.Status, store.StatusPlaying)
	if s.engine == nil {
		t.Fatal("expected the engine to survive")
	}
	s.mu.Unlock()
}

func TestSuspend_RejoinDuringPersistRevives(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}

	s := c.lookup(host.SessionCode)
	s.mu.Lock()
	delete(s.conns, "conn1")
	s.mu.Unlock()

	entered := make(chan struct{})
	gate := make(chan struct{})
	st.mu.Lock()
	st.saveEntered = entered
	st.saveGate = gate
	st.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.suspend(s)
		close(done)
	}()
	<-entered

	// The suspension snapshot is mid-write when the player returns. The
	// rejoin must revive the room in place, not attach to a dead one.
	resp, err := c.Rejoin(ctx, "conn2", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    host.PlayerID,
		PlayerKey:   host.PlayerKey,
	})
	if err != nil {
		t.Fatalf("rejoining: %v", err)
	}
	testutil.AssertEqual(t, "status", resp.Status, string(store.StatusPaused))

	st.mu.Lock()
	st.saveEntered = nil
	st.saveGate = nil
	st.mu.Unlock()
	close(gate)
	<-done

	revived := c.lookup(host.SessionCode)
	if revived == nil {
		t.Fatal("expected the revived session to stay registered")
	}
	revived.mu.Lock()
	testutil.AssertEqual(t, "live status", revived.doc.Status, store.StatusPaused)
	if revived.engine == nil {
		t.Fatal("expected a rebuilt engine")
	}
	if revived.doc.SuspendedAt != nil {
		t.Fatal("expected the suspension timestamp to clear")
	}
	revived.mu.Unlock()

	// The returning player can pick the game back up.
	if err := c.Resume(ctx, "conn2"); err != nil {
		t.Fatalf("resuming: %v", err)
	}
	if err := c.persist(ctx, revived); err != nil {
		t.Fatalf("persisting: %v", err)
	}
	doc, err := st.Load(ctx, host.SessionCode)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	testutil.AssertEqual(t, "stored status", doc.Status, store.StatusPlaying)
}

func TestRejoin(t *testing.T) {
	c, _, pub := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	ben, err := c.Join(ctx, "conn2", protocol.JoinRequest{SessionCode: host.SessionCode, DisplayName: "Ben"})
	if err != nil {
		t.Fatalf("joining: %v", err)
	}
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}

	// Still connected elsewhere: no identity takeover.
	_, err = c.Rejoin(ctx, "conn3", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    ben.PlayerID,
		PlayerKey:   ben.PlayerKey,
	})
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}

	c.HandleDisconnect("conn2")

	_, err = c.Rejoin(ctx, "conn3", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    ben.PlayerID,
		PlayerKey:   "not-the-key",
	})
	if !errors.Is(err, ErrRejoinDenied) {
		t.Fatalf("expected ErrRejoinDenied, got %v", err)
	}

	resp, err := c.Rejoin(ctx, "conn3", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    ben.PlayerID,
		PlayerKey:   ben.PlayerKey,
	})
	if err != nil {
		t.Fatalf("rejoining: %v", err)
	}
	testutil.AssertEqual(t, "identity", resp.PlayerID, ben.PlayerID)
	testutil.AssertEqual(t, "status", resp.Status, string(store.StatusPlaying))
	if resp.PlayerKey != "" {
		t.Fatal("rejoin must not reissue the key")
	}
	if _, ok := pub.lastBroadcast(protocol.EvPlayerJoined); !ok {
		t.Fatal("expected a playerJoined broadcast")
	}
}

func TestRejoin_HiddenPausesLiveGame(t *testing.T) {
	c, _, pub := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	ben, err := c.Join(ctx, "conn2", protocol.JoinRequest{SessionCode: host.SessionCode, DisplayName: "Ben"})
	if err != nil {
		t.Fatalf("joining: %v", err)
	}
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}
	c.HandleDisconnect("conn2")

	resp, err := c.Rejoin(ctx, "conn3", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    ben.PlayerID,
		PlayerKey:   ben.PlayerKey,
		Hidden:      true,
	})
	if err != nil {
		t.Fatalf("rejoining: %v", err)
	}
	testutil.AssertEqual(t, "status", resp.Status, string(store.StatusPaused))

	rec, ok := pub.lastBroadcast(protocol.EvGamePaused)
	if !ok {
		t.Fatal("expected a gamePaused broadcast")
	}
	testutil.AssertEqual(t, "paused by", rec.payload.(protocol.PausedBroadcast).PausedBy, "Ben")
}

func TestRejoin_RevivesSuspendedSession(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")
	if err := c.StartGame(ctx, "conn1"); err != nil {
		t.Fatalf("starting: %v", err)
	}

	s := c.lookup(host.SessionCode)
	s.mu.Lock()
	delete(s.conns, "conn1")
	s.mu.Unlock()
	c.suspend(s)

	resp, err := c.Rejoin(ctx, "conn4", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    host.PlayerID,
		PlayerKey:   host.PlayerKey,
	})
	if err != nil {
		t.Fatalf("rejoining: %v", err)
	}

	// Revival parks the game paused; play resumes on an explicit resume.
	testutil.AssertEqual(t, "status", resp.Status, string(store.StatusPaused))

	revived := c.lookup(host.SessionCode)
	if revived == nil {
		t.Fatal("expected the session back in the registry")
	}
	revived.mu.Lock()
	if revived.engine == nil {
		t.Fatal("expected a rebuilt engine")
	}
	testutil.AssertEqual(t, "engine idle", revived.engine.State(), sim.StateIdle)
	if revived.doc.SuspendedAt != nil {
		t.Fatal("expected the suspension timestamp to clear")
	}
	revived.mu.Unlock()

	if err := c.Resume(ctx, "conn4"); err != nil {
		t.Fatalf("resuming: %v", err)
	}
	revived.mu.Lock()
	testutil.AssertEqual(t, "running", revived.engine.State(), sim.StateRunning)
	revived.mu.Unlock()

	// The revived state is durable again once something persists it.
	if err := c.persist(ctx, revived); err != nil {
		t.Fatalf("persisting: %v", err)
	}
	doc, _ := st.Load(ctx, host.SessionCode)
	testutil.AssertEqual(t, "stored status", doc.Status, store.StatusPlaying)
}

func TestRejoin_CompletedSessionIsGone(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()
	host := createSession(t, c, "conn1", "Ana")

	s := c.lookup(host.SessionCode)
	s.mu.Lock()
	s.doc.Status = store.StatusCompleted
	s.mu.Unlock()
	if err := c.persist(ctx, s); err != nil {
		t.Fatalf("persisting: %v", err)
	}
	c.unregister(host.SessionCode)

	_, err := c.Rejoin(ctx, "conn2", protocol.JoinRequest{
		SessionCode: host.SessionCode,
		PlayerID:    host.PlayerID,
		PlayerKey:   host.PlayerKey,
	})
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}

	// Still stored; only the reaper or an empty-room disconnect deletes.
	if _, err := st.Load(ctx, host.SessionCode); err != nil {
		t.Fatalf("loading: %v", err)
	}
}

func TestTick_ReapsExpiredSuspensions(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC()
	fresh := time.Now().Add(-time.Hour).UTC()

	expired := &store.SessionDoc{Code: "OLDOLD", Status: store.StatusSuspended, SuspendedAt: &old}
	recent := &store.SessionDoc{Code: "FRESH2", Status: store.StatusSuspended, SuspendedAt: &fresh}
	saved := &store.SessionDoc{Code: "SAVED2", Status: store.StatusSaved}

	for _, d := range []*store.SessionDoc{expired, recent, saved} {
		if err := st.Save(ctx, d); err != nil {
			t.Fatalf("seeding %s: %v", d.Code, err)
		}
	}

	if err := c.Tick(ctx); err != nil {
		t.Fatalf("ticking: %v", err)
	}

	if _, err := st.Load(ctx, "OLDOLD"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected the expired session to be deleted, got %v", err)
	}
	if _, err := st.Load(ctx, "FRESH2"); err != nil {
		t.Fatalf("fresh suspension should survive: %v", err)
	}
	if _, err := st.Load(ctx, "SAVED2"); err != nil {
		t.Fatalf("saved sessions are outside the reaper's scope: %v", err)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]struct {
		in     string
		exp    string
		expErr bool
	}{
		"plain":        {in: "Ana", exp: "Ana"},
		"trimmed":      {in: "  Ana  ", exp: "Ana"},
		"empty":        {in: "", expErr: true},
		"only spaces":  {in: "   ", expErr: true},
		"at the limit": {in: "abcdefghijklmnopqrstuvwx", exp: "abcdefghijklmnopqrstuvwx"},
		"over":         {in: "abcdefghijklmnopqrstuvwxy", expErr: true},
		"decomposed":   {in: "Ame\u0301lie", exp: "Am\u00e9lie"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := normalizeName(tt.in)
			if tt.expErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Fatalf("expected ErrInvalidName, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "normalized", got, tt.exp)
		})
	}
}
