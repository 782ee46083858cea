package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestMarshal(t *testing.T) {
	data, err := Marshal(EvWaveStart, WaveStart{WaveNumber: 3, UnitCount: 14})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	testutil.AssertEqual(t, "type", env.Type, EvWaveStart)

	var payload WaveStart
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	testutil.AssertEqual(t, "wave number", payload.WaveNumber, 3)
	testutil.AssertEqual(t, "unit count", payload.UnitCount, 14)
}

func TestMarshal_NilPayload(t *testing.T) {
	data, err := Marshal(EvGameStarted, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	testutil.AssertEqual(t, "type", env.Type, EvGameStarted)
	testutil.AssertEqual(t, "payload length", len(env.Payload), 0)
}

func TestMarshal_UnencodablePayload(t *testing.T) {
	_, err := Marshal(EvChatMessage, map[string]any{"bad": make(chan int)})
	if err == nil {
		t.Fatal("expected error for unencodable payload")
	}
}
