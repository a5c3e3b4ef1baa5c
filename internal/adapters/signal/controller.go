// Package signal is the websocket side of the hub: one controller serving
// /api/ws/meeting, a send-pump per socket, and the command dispatch that
// drives room membership and offer/answer/ICE routing.
package signal

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
	"github.com/vtran/meetcore/internal/hub"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeWait    = 5 * time.Second
	sendBacklog  = 32
	defaultGrace = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type MeetingController struct {
	Hub    *hub.Hub
	Policy hub.Policy
	// Grace is how long a dropped member stays on the roster awaiting a
	// reconnect before user_left goes out.
	Grace time.Duration
}

func NewMeetingController(h *hub.Hub, policy hub.Policy) *MeetingController {
	return &MeetingController{Hub: h, Policy: policy, Grace: defaultGrace}
}

// wsConn wraps one socket with a bounded send queue.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Kick() { c.Close() }

func (c *wsConn) Close() {
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

// client is the per-socket state the read pump threads through dispatch.
type client struct {
	conn     *wsConn
	connID   domain.ConnectionID
	userID   domain.UserID
	username string
	room     *hub.Room
	admitted bool
	waiting  bool
}

// HandleMeeting upgrades the socket, sends the welcome frame with the
// assigned connection id, and runs the pumps.
func (ctl *MeetingController) HandleMeeting(c *gin.Context) {
	token := c.GetString("client_token")
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	connID := ctl.Hub.ConnectionFor(token)
	conn := &wsConn{conn: ws, send: make(chan []byte, sendBacklog)}
	cl := &client{conn: conn, connID: connID}

	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("socket attached")

	go ctl.writePump(conn)
	ctl.sendJSON(nil, connID, conn, struct {
		Type         string              `json:"type"`
		ConnectionID domain.ConnectionID `json:"connectionId"`
	}{core.EvtConnected, connID})

	ctl.readPump(cl)
}

func (ctl *MeetingController) writePump(c *wsConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write")
			return
		}
	}
}

func (ctl *MeetingController) readPump(cl *client) {
	defer func() {
		cl.conn.Close()
		ctl.handleDisconnect(cl)
	}()

	for {
		_, data, err := cl.conn.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal").
				Str("conn", string(cl.connID)).Msg("readPump closing")
			return
		}
		ctl.dispatch(cl, data)
	}
}

func (ctl *MeetingController) dispatch(cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case core.CmdJoinRoom:
		ctl.handleJoin(cl, data)
	case core.CmdLeaveRoom:
		ctl.handleLeave(cl)
	case core.CmdAdmitUser:
		ctl.handleAdmit(cl, data)
	case core.CmdRejectUser:
		ctl.handleReject(cl, data)
	case core.CmdSendOffer:
		ctl.handleOffer(cl, data)
	case core.CmdSendAnswer:
		ctl.handleAnswer(cl, data)
	case core.CmdSendIceCandidate:
		ctl.handleCandidate(cl, data)
	case core.CmdToggleMicrophone:
		ctl.handleToggle(cl, data, core.EvtMicrophoneToggled, func(m *hub.Member, on bool) { m.MicEnabled = on })
	case core.CmdToggleCamera:
		ctl.handleToggle(cl, data, core.EvtCameraToggled, func(m *hub.Member, on bool) { m.CamEnabled = on })
	case core.CmdToggleScreenShare:
		ctl.handleToggle(cl, data, core.EvtScreenShareToggled, func(m *hub.Member, on bool) { m.Screen = on })
	case core.CmdSendChat:
		ctl.handleChat(cl, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown command")
	}
}

// sendJSON marshals and queues; a full queue goes through the backpressure
// policy with the slow member's connection id. room may be nil for pre-join
// frames.
func (ctl *MeetingController) sendJSON(room *hub.Room, connID domain.ConnectionID, s hub.Sender, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := s.TrySend(data); !errors.Is(err, ErrBackpressure) {
		return
	}
	action := hub.KickMember
	if ctl.Policy != nil && room != nil {
		action = ctl.Policy.OnBackpressure(room.Info().ID, connID)
	}
	if action == hub.KickMember {
		log.Warn().Str("module", "signal").
			Str("conn", string(connID)).Msg("slow consumer kicked")
		s.Kick()
	}
}

func (ctl *MeetingController) broadcast(room *hub.Room, except domain.ConnectionID, v any) {
	for id, s := range room.Senders(except) {
		ctl.sendJSON(room, id, s, v)
	}
}

func (ctl *MeetingController) sendError(cl *client, msg string) {
	ctl.sendJSON(cl.room, cl.connID, cl.conn, struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{core.EvtError, msg})
}
