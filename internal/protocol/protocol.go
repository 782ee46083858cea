// Package protocol defines the named events and payload shapes that
// cross the transport, in both directions. The listener decodes
// envelopes from websocket frames; the coordinator and simulation
// publish them through the room broker.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal builds an envelope around the given payload.
func Marshal(eventType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", eventType, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Client → server event names.
const (
	EvCreateSession    = "createSession"
	EvJoinSession      = "joinSession"
	EvRejoinSession    = "rejoinSession"
	EvStartGame        = "startGame"
	EvPlaceStructure   = "placeStructure"
	EvUpgradeStructure = "upgradeStructure"
	EvSellStructure    = "sellStructure"
	EvPauseGame        = "pauseGame"
	EvResumeGame       = "resumeGame"
	EvSaveSession      = "saveSession"
	EvChat             = "chat"
	EvListLobbies      = "listLobbies"
)

// Server → client event names.
const (
	EvError             = "error"
	EvSessionJoined     = "sessionJoined"
	EvPlayerJoined      = "playerJoined"
	EvPlayerLeft        = "playerLeft"
	EvGameStarted       = "gameStarted"
	EvGamePaused        = "gamePaused"
	EvGameResumed       = "gameResumed"
	EvSessionSaved      = "sessionSaved"
	EvStructurePlaced   = "structurePlaced"
	EvStructureUpgraded = "structureUpgraded"
	EvStructureSold     = "structureSold"
	EvStructureFired    = "structureFired"
	EvStateSnapshot     = "stateSnapshot"
	EvWaveStart         = "waveStart"
	EvWaveComplete      = "waveComplete"
	EvUnitKilled        = "unitKilled"
	EvUnitEscaped       = "unitEscaped"
	EvSessionOver       = "sessionOver"
	EvLobbyList         = "lobbyList"
	EvChatMessage       = "chatMessage"
)

type CreateSessionRequest struct {
	DisplayName string `json:"displayName"`
	SizeClass   string `json:"sizeClass,omitempty"`
}

type JoinRequest struct {
	SessionCode string `json:"sessionCode"`
	DisplayName string `json:"displayName"`
	// Hidden reports the client was backgrounded at reconnect time;
	// the coordinator auto-pauses a playing session on such a rejoin.
	Hidden bool `json:"hidden,omitempty"`
	// PlayerID and PlayerKey are the stable identity and rejoin
	// secret issued at first join.
	PlayerID  string `json:"playerId,omitempty"`
	PlayerKey string `json:"playerKey,omitempty"`
}

type PlayerInfo struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Host        bool   `json:"host"`
	Connected   bool   `json:"connected"`
}

type EconomyState struct {
	Balance        int  `json:"balance"`
	Lives          int  `json:"lives"`
	Wave           int  `json:"wave"`
	WaveInProgress bool `json:"waveInProgress"`
}

type StructureInfo struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	GridX int    `json:"gridX"`
	GridY int    `json:"gridY"`
	Level int    `json:"level"`
}

type JoinResponse struct {
	SessionCode string          `json:"sessionCode"`
	PlayerID    string          `json:"playerId"`
	PlayerKey   string          `json:"playerKey,omitempty"`
	Map         json.RawMessage `json:"map"`
	Players     []PlayerInfo    `json:"players"`
	Structures  []StructureInfo `json:"structures"`
	Economy     EconomyState    `json:"economyState"`
	Status      string          `json:"status"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// ActionError is the failure shape for the structure economy actions;
// join and lifecycle failures use ErrorResponse instead.
type ActionError struct {
	Error string `json:"error"`
}

type PlaceStructureRequest struct {
	Kind  string `json:"kind"`
	GridX int    `json:"gridX"`
	GridY int    `json:"gridY"`
}

type PlaceStructureResponse struct {
	Structure  StructureInfo `json:"structure"`
	NewBalance int           `json:"newBalance"`
}

type UpgradeStructureRequest struct {
	StructureID string `json:"structureId"`
}

type UpgradeStructureResponse struct {
	StructureID string `json:"structureId"`
	NewLevel    int    `json:"newLevel"`
	NewBalance  int    `json:"newBalance"`
}

type SellStructureRequest struct {
	StructureID string `json:"structureId"`
}

type SellStructureResponse struct {
	StructureID string `json:"structureId"`
	SellValue   int    `json:"sellValue"`
	NewBalance  int    `json:"newBalance"`
}

type PausedBroadcast struct {
	PausedBy string `json:"pausedBy,omitempty"`
}

type UnitSnapshot struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

type StateSnapshot struct {
	Units   []UnitSnapshot `json:"units"`
	Balance int            `json:"balance"`
	Lives   int            `json:"lives"`
	Wave    int            `json:"wave"`
}

type WaveStart struct {
	WaveNumber int  `json:"waveNumber"`
	UnitCount  int  `json:"unitCount"`
	Milestone  bool `json:"milestone"`
}

type WaveComplete struct {
	WaveNumber int `json:"waveNumber"`
}

type UnitKilled struct {
	UnitID     string  `json:"unitId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Reward     int     `json:"reward"`
	NewBalance int     `json:"newBalance"`
}

type UnitEscaped struct {
	UnitID         string  `json:"unitId"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	LivesRemaining int     `json:"livesRemaining"`
}

type StructureFired struct {
	StructureKind string  `json:"structureKind"`
	FromX         float64 `json:"fromX"`
	FromY         float64 `json:"fromY"`
	ToX           float64 `json:"toX"`
	ToY           float64 `json:"toY"`
	TargetUnitID  string  `json:"targetUnitId"`
	Hit           bool    `json:"hit"`
}

type SessionStats struct {
	WavesCompleted  int `json:"wavesCompleted"`
	UnitsKilled     int `json:"unitsKilled"`
	StructuresBuilt int `json:"structuresBuilt"`
	DurationSecs    int `json:"durationSecs"`
}

type SessionOver struct {
	Victory   bool         `json:"victory"`
	FinalWave int          `json:"finalWave"`
	Stats     SessionStats `json:"stats"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type ChatMessage struct {
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

type LobbySummary struct {
	SessionCode string `json:"sessionCode"`
	HostName    string `json:"hostName"`
	PlayerCount int    `json:"playerCount"`
	Status      string `json:"status"`
}

type LobbyList struct {
	Lobbies []LobbySummary `json:"lobbies"`
}
