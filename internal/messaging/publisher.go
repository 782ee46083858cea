package messaging

import (
	"fmt"

	"github.com/pixil98/go-bastion/internal/protocol"
)

// Broker is the slice of the NATS server the publisher needs. Tests
// substitute an in-process fake.
type Broker interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// SessionSubject is the broadcast subject for a session room.
func SessionSubject(code string) string {
	return fmt.Sprintf("session.%s", code)
}

// ConnSubject is the direct subject for a single connection.
func ConnSubject(connID string) string {
	return fmt.Sprintf("conn.%s", connID)
}

// RoomPublisher implements the transport gateway's broadcast side:
// named events with JSON payloads, addressed to a session room or to a
// single connection.
type RoomPublisher struct {
	broker Broker
}

func NewRoomPublisher(broker Broker) *RoomPublisher {
	return &RoomPublisher{broker: broker}
}

// Broadcast publishes a named event to every member of a session room.
func (p *RoomPublisher) Broadcast(code, event string, payload any) error {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}
	return p.broker.Publish(SessionSubject(code), data)
}

// Send publishes a named event to a single connection.
func (p *RoomPublisher) Send(connID, event string, payload any) error {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}
	return p.broker.Publish(ConnSubject(connID), data)
}
