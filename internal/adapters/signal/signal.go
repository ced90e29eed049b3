// Package signal adapts WebSocket sessions to coordinator events: it
// performs the handshake, relays inbound frames, and implements the
// outbound sink the broadcaster fans out to.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/app/orch"
	"github.com/averin/parlor/internal/auth"
	"github.com/averin/parlor/internal/config"
	"github.com/averin/parlor/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const handshakeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Coord  *orch.Coordinator
	Tokens *auth.Tokens
	Cfg    *config.Config
}

func NewController(coord *orch.Coordinator, tokens *auth.Tokens, cfg *config.Config) *Controller {
	return &Controller{Coord: coord, Tokens: tokens, Cfg: cfg}
}

// WsConn is the outbound half of one client session. TrySend never
// blocks; a full send buffer drops the frame.
type WsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(event string, v any) error {
	b, err := json.Marshal(outEnvelope{Type: event, Data: v})
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request, runs the handshake, and pumps
// frames until the session ends. A session that fails the handshake is
// closed before any event reaches the coordinator.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan []byte, ctl.Cfg.SendBuffer),
	}
	id := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	identity, err := ctl.handshake(ws)
	if err != nil {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Err(err).Msg("handshake failed, closing session")
		_ = ws.Close()
		return
	}

	if err := ctl.Coord.Connect(id, identity, conn); err != nil {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Err(err).Msg("registration rejected, closing session")
		_ = ws.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	ctl.readPump(ctx, id, conn)

	// Read side is done: tear the session down and let the coordinator
	// restore the membership invariants.
	cancel()
	ctl.Coord.Disconnect(id)
	conn.Close()
}

// handshake reads the first frame and resolves the identity claim. A
// login-issued token takes precedence; raw fields are trusted as-is.
func (ctl *Controller) handshake(ws *websocket.Conn) (domain.Identity, error) {
	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))

	_, data, err := ws.ReadMessage()
	if err != nil {
		return domain.Identity{}, err
	}
	var env inEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Identity{}, err
	}
	if env.Type != "handshake" {
		return domain.Identity{}, errors.New("first frame must be a handshake")
	}
	var p handshakePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return domain.Identity{}, err
	}

	if p.Token != "" {
		return ctl.Tokens.Verify(p.Token)
	}
	identity := domain.Identity{
		UserID:   domain.UserID(p.UserID),
		Username: p.Username,
		IsAdmin:  p.IsAdmin,
	}
	return identity, identity.Validate()
}
