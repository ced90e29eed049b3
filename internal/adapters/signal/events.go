package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/domain"
)

type inEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type handshakePayload struct {
	Token    string `json:"token,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"isAdmin,omitempty"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type messagePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// handleFrame routes one inbound frame to the coordinator.
func (ctl *Controller) handleFrame(id domain.ConnID, c *WsConn, data []byte) {
	var env inEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case "join-room":
		var p roomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			ctl.sendError(c, "bad_payload")
			return
		}
		ctl.Coord.Join(id, domain.RoomID(p.RoomID))
	case "leave-room":
		var p roomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			ctl.sendError(c, "bad_payload")
			return
		}
		ctl.Coord.Leave(id, domain.RoomID(p.RoomID))
	case "send-message":
		var p messagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			ctl.sendError(c, "bad_payload")
			return
		}
		ctl.Coord.Message(id, domain.RoomID(p.RoomID), p.Message)
	case "get-rooms":
		ctl.Coord.GetRooms(id)
	case "close-room":
		var p roomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			ctl.sendError(c, "bad_payload")
			return
		}
		ctl.Coord.CloseRoom(id, domain.RoomID(p.RoomID))
	case "ping":
		_ = c.TrySend("pong", nil)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendError(c *WsConn, msg string) {
	_ = c.TrySend("error", map[string]string{"message": msg})
}
