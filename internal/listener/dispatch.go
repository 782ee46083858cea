package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pixil98/go-bastion/internal/protocol"
	"github.com/pixil98/go-bastion/internal/sim"
)

// dispatch decodes one inbound envelope and routes it. Anything the
// player can fix comes back as an error event on their connection;
// anything else is logged and reported generically.
func (c *client) dispatch(ctx context.Context, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendEvent(protocol.EvError, protocol.ErrorResponse{Message: "malformed message"})
		return
	}

	if err := c.handle(ctx, env); err != nil {
		var uerr *sim.UserError
		if errors.As(err, &uerr) {
			c.sendEvent(protocol.EvError, errorPayload(env.Type, uerr.Message))
			return
		}
		c.logger.Errorf("handling %s from %s: %s", env.Type, c.id, err)
		c.sendEvent(protocol.EvError, errorPayload(env.Type, "internal error"))
	}
}

// errorPayload picks the failure shape for the event that failed: the
// structure actions report under "error", everything else under
// "message".
func errorPayload(eventType, msg string) any {
	switch eventType {
	case protocol.EvPlaceStructure, protocol.EvUpgradeStructure, protocol.EvSellStructure:
		return protocol.ActionError{Error: msg}
	default:
		return protocol.ErrorResponse{Message: msg}
	}
}

func (c *client) handle(ctx context.Context, env protocol.Envelope) error {
	switch env.Type {
	case protocol.EvCreateSession:
		var req protocol.CreateSessionRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		resp, err := c.handler.CreateSession(ctx, c.id, req)
		if err != nil {
			return err
		}
		c.joinRoom(resp.SessionCode)
		c.sendEvent(protocol.EvSessionJoined, resp)
		return nil

	case protocol.EvJoinSession:
		var req protocol.JoinRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		resp, err := c.handler.Join(ctx, c.id, req)
		if err != nil {
			return err
		}
		c.joinRoom(resp.SessionCode)
		c.sendEvent(protocol.EvSessionJoined, resp)
		return nil

	case protocol.EvRejoinSession:
		var req protocol.JoinRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		resp, err := c.handler.Rejoin(ctx, c.id, req)
		if err != nil {
			return err
		}
		c.joinRoom(resp.SessionCode)
		c.sendEvent(protocol.EvSessionJoined, resp)
		return nil

	case protocol.EvStartGame:
		return c.handler.StartGame(ctx, c.id)

	case protocol.EvPauseGame:
		return c.handler.Pause(ctx, c.id)

	case protocol.EvResumeGame:
		return c.handler.Resume(ctx, c.id)

	case protocol.EvSaveSession:
		return c.handler.SaveSession(ctx, c.id)

	case protocol.EvPlaceStructure:
		var req protocol.PlaceStructureRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return c.handler.PlaceStructure(ctx, c.id, req)

	case protocol.EvUpgradeStructure:
		var req protocol.UpgradeStructureRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return c.handler.UpgradeStructure(ctx, c.id, req)

	case protocol.EvSellStructure:
		var req protocol.SellStructureRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return c.handler.SellStructure(ctx, c.id, req)

	case protocol.EvChat:
		var req protocol.ChatRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return c.handler.Chat(c.id, req.Text)

	case protocol.EvListLobbies:
		return c.handler.ListLobbies(ctx, c.id)

	default:
		return sim.NewUserError(fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func decode(env protocol.Envelope, out any) error {
	if len(env.Payload) == 0 {
		return sim.NewUserError(fmt.Sprintf("%s requires a payload", env.Type))
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return sim.NewUserError(fmt.Sprintf("malformed %s payload", env.Type))
	}
	return nil
}
