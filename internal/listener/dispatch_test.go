package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus"

	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/sim"
)

// fakeHandler records which coordinator method each envelope landed on.
type fakeHandler struct {
	calls []string
	// err, when set, is returned from every call.
	err error

	lastChat   string
	disconnect int
}

func (h *fakeHandler) join() (*protocol.JoinResponse, error) {
	if h.err != nil {
		return nil, h.err
	}
	return &protocol.JoinResponse{SessionCode: "ABC234", PlayerID: "p1"}, nil
}

func (h *fakeHandler) CreateSession(_ context.Context, _ string, _ protocol.CreateSessionRequest) (*protocol.JoinResponse, error) {
	h.calls = append(h.calls, "create")
	return h.join()
}

func (h *fakeHandler) Join(_ context.Context, _ string, _ protocol.JoinRequest) (*protocol.JoinResponse, error) {
	h.calls = append(h.calls, "join")
	return h.join()
}

func (h *fakeHandler) Rejoin(_ context.Context, _ string, _ protocol.JoinRequest) (*protocol.JoinResponse, error) {
	h.calls = append(h.calls, "rejoin")
	return h.join()
}

func (h *fakeHandler) StartGame(context.Context, string) error {
	h.calls = append(h.calls, "start")
	return h.err
}

func (h *fakeHandler) Pause(context.Context, string) error {
	h.calls = append(h.calls, "pause")
	return h.err
}

func (h *fakeHandler) Resume(context.Context, string) error {
	h.calls = append(h.calls, "resume")
	return h.err
}

func (h *fakeHandler) SaveSession(context.Context, string) error {
	h.calls = append(h.calls, "save")
	return h.err
}

func (h *fakeHandler) PlaceStructure(_ context.Context, _ string, _ protocol.PlaceStructureRequest) error {
	h.calls = append(h.calls, "place")
	return h.err
}

func (h *fakeHandler) UpgradeStructure(_ context.Context, _ string, _ protocol.UpgradeStructureRequest) error {
	h.calls = append(h.calls, "upgrade")
	return h.err
}

func (h *fakeHandler) SellStructure(_ context.Context, _ string, _ protocol.SellStructureRequest) error {
	h.calls = append(h.calls, "sell")
	return h.err
}

func (h *fakeHandler) Chat(_ string, text string) error {
	h.calls = append(h.calls, "chat")
	h.lastChat = text
	return h.err
}

func (h *fakeHandler) ListLobbies(context.Context, string) error {
	h.calls = append(h.calls, "lobbies")
	return h.err
}

func (h *fakeHandler) HandleDisconnect(string) {
	h.disconnect++
}

// fakeBroker tracks subscriptions by subject.
type fakeBroker struct {
	published map[string][][]byte
	subs      map[string]func([]byte)
	unsubbed  []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		published: map[string][][]byte{},
		subs:      map[string]func([]byte){},
	}
}

func (b *fakeBroker) Publish(subject string, data []byte) error {
	b.published[subject] = append(b.published[subject], data)
	if fn, ok := b.subs[subject]; ok {
		fn(data)
	}
	return nil
}

func (b *fakeBroker) Subscribe(subject string, handler func([]byte)) (func(), error) {
	b.subs[subject] = handler
	return func() {
		delete(b.subs, subject)
		b.unsubbed = append(b.unsubbed, subject)
	}, nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestClient builds a client without a socket; dispatch never
// touches the connection, only the send queue.
func newTestClient(handler *fakeHandler, broker *fakeBroker) *client {
	return newClient(nil, handler, broker, quietLogger())
}

// drain pops every queued outbound envelope.
func drain(t *testing.T, c *client) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case data := <-c.send:
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("decoding outbound envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func envelope(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	data, err := protocol.Marshal(typ, payload)
	if err != nil {
		t.Fatalf("encoding envelope: %v", err)
	}
	return data
}

func TestDispatch_Routing(t *testing.T) {
	tests := map[string]struct {
		typ     string
		payload any
		expCall string
	}{
		"create":  {protocol.EvCreateSession, protocol.CreateSessionRequest{DisplayName: "Ana"}, "create"},
		"join":    {protocol.EvJoinSession, protocol.JoinRequest{SessionCode: "ABC234", DisplayName: "Ben"}, "join"},
		"rejoin":  {protocol.EvRejoinSession, protocol.JoinRequest{SessionCode: "ABC234", PlayerID: "p1", PlayerKey: "k"}, "rejoin"},
		"start":   {protocol.EvStartGame, nil, "start"},
		"pause":   {protocol.EvPauseGame, nil, "pause"},
		"resume":  {protocol.EvResumeGame, nil, "resume"},
		"save":    {protocol.EvSaveSession, nil, "save"},
		"place":   {protocol.EvPlaceStructure, protocol.PlaceStructureRequest{Kind: "arrow", GridX: 1, GridY: 2}, "place"},
		"upgrade": {protocol.EvUpgradeStructure, protocol.UpgradeStructureRequest{StructureID: "s1"}, "upgrade"},
		"sell":    {protocol.EvSellStructure, protocol.SellStructureRequest{StructureID: "s1"}, "sell"},
		"chat":    {protocol.EvChat, protocol.ChatRequest{Text: "hi"}, "chat"},
		"lobbies": {protocol.EvListLobbies, nil, "lobbies"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			handler := &fakeHandler{}
			c := newTestClient(handler, newFakeBroker())

			c.dispatch(context.Background(), envelope(t, tt.typ, tt.payload))

			if len(handler.calls) != 1 || handler.calls[0] != tt.expCall {
				t.Fatalf("expected one %q call, got %v", tt.expCall, handler.calls)
			}
			for _, env := range drain(t, c) {
				if env.Type == protocol.EvError {
					t.Fatalf("unexpected error event: %s", env.Payload)
				}
			}
		})
	}
}

func TestDispatch_JoinSubscribesTheRoom(t *testing.T) {
	handler := &fakeHandler{}
	broker := newFakeBroker()
	c := newTestClient(handler, broker)

	c.dispatch(context.Background(), envelope(t, protocol.EvJoinSession, protocol.JoinRequest{
		SessionCode: "ABC234",
		DisplayName: "Ben",
	}))

	out := drain(t, c)
	if len(out) != 1 || out[0].Type != protocol.EvSessionJoined {
		t.Fatalf("expected a sessionJoined reply, got %v", out)
	}

	if _, ok := broker.subs["session.ABC234"]; !ok {
		t.Fatal("expected a subscription to the session room")
	}

	// Room traffic now reaches this connection's queue.
	if err := broker.Publish("session.ABC234", envelope(t, protocol.EvChatMessage, protocol.ChatMessage{Text: "hi"})); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	relayed := drain(t, c)
	if len(relayed) != 1 || relayed[0].Type != protocol.EvChatMessage {
		t.Fatalf("expected the room event relayed, got %v", relayed)
	}
}

func TestDispatch_UserErrorsReachOnlyTheCaller(t *testing.T) {
	handler := &fakeHandler{err: sim.NewUserError("tile is already occupied")}
	c := newTestClient(handler, newFakeBroker())

	c.dispatch(context.Background(), envelope(t, protocol.EvStartGame, nil))

	out := drain(t, c)
	if len(out) != 1 || out[0].Type != protocol.EvError {
		t.Fatalf("expected one error event, got %v", out)
	}
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(out[0].Payload, &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	testutil.AssertEqual(t, "message", resp.Message, "tile is already occupied")
}

func TestDispatch_ActionFailuresUseTheErrorField(t *testing.T) {
	handler := &fakeHandler{err: sim.NewUserError("cell is not buildable")}
	c := newTestClient(handler, newFakeBroker())

	tests := map[string]struct {
		typ     string
		payload any
	}{
		"place":   {protocol.EvPlaceStructure, protocol.PlaceStructureRequest{Kind: "arrow", GridX: 1, GridY: 2}},
		"upgrade": {protocol.EvUpgradeStructure, protocol.UpgradeStructureRequest{StructureID: "s1"}},
		"sell":    {protocol.EvSellStructure, protocol.SellStructureRequest{StructureID: "s1"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c.dispatch(context.Background(), envelope(t, tt.typ, tt.payload))

			out := drain(t, c)
			if len(out) != 1 || out[0].Type != protocol.EvError {
				t.Fatalf("expected one error event, got %v", out)
			}
			var resp protocol.ActionError
			if err := json.Unmarshal(out[0].Payload, &resp); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			testutil.AssertEqual(t, "error field", resp.Error, "cell is not buildable")

			// The structure actions never use the message shape.
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(out[0].Payload, &raw); err != nil {
				t.Fatalf("decoding raw: %v", err)
			}
			if _, ok := raw["message"]; ok {
				t.Fatal("action failures must not carry a message field")
			}
		})
	}
}

func TestDispatch_InternalErrorsAreNotLeaked(t *testing.T) {
	handler := &fakeHandler{err: fmt.Errorf("pq: connection refused")}
	c := newTestClient(handler, newFakeBroker())

	c.dispatch(context.Background(), envelope(t, protocol.EvStartGame, nil))

	out := drain(t, c)
	if len(out) != 1 || out[0].Type != protocol.EvError {
		t.Fatalf("expected one error event, got %v", out)
	}
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(out[0].Payload, &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	testutil.AssertEqual(t, "message", resp.Message, "internal error")
}

func TestDispatch_BadInput(t *testing.T) {
	tests := map[string]struct {
		data []byte
	}{
		"not json":        {[]byte("not json at all")},
		"unknown type":    {envelope(t, "teleport", nil)},
		"missing payload": {envelope(t, protocol.EvPlaceStructure, nil)},
		"wrong payload":   {[]byte(`{"type":"placeStructure","payload":"nope"}`)},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			handler := &fakeHandler{}
			c := newTestClient(handler, newFakeBroker())

			c.dispatch(context.Background(), tt.data)

			out := drain(t, c)
			if len(out) != 1 || out[0].Type != protocol.EvError {
				t.Fatalf("expected one error event, got %v", out)
			}
			testutil.AssertEqual(t, "no handler call", len(handler.calls), 0)
		})
	}
}

func TestEnqueue_SlowConsumerIsClosed(t *testing.T) {
	c := newTestClient(&fakeHandler{}, newFakeBroker())

	// Fill the outbound buffer without a write pump draining it.
	for i := 0; i < sendBuffer; i++ {
		c.enqueue([]byte("{}"))
	}

	select {
	case <-c.closed:
		t.Fatal("a full buffer alone must not close the connection")
	default:
	}

	c.enqueue([]byte("{}"))

	select {
	case <-c.closed:
	default:
		t.Fatal("expected the overflowing connection to be closed")
	}
}
