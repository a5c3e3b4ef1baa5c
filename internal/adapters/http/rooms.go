package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/domain"
	"github.com/vtran/meetcore/internal/hub"
)

// RoomController serves the room-state REST surface. Responses share one
// envelope so clients can decode uniformly.
type RoomController struct {
	Hub *hub.Hub
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Success: false, Message: msg})
}

type identity struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
}

type createRoomReq struct {
	Name        string        `json:"name"`
	WaitingRoom bool          `json:"waiting_room"`
	UserID      domain.UserID `json:"user_id"`
}

func (rc *RoomController) Create(c *gin.Context) {
	var req createRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad payload")
		return
	}
	if req.UserID == "" {
		fail(c, http.StatusBadRequest, "user_id required")
		return
	}
	if len(req.Name) > domain.MaxUsernameLen {
		req.Name = req.Name[:domain.MaxUsernameLen]
	}

	room := rc.Hub.CreateRoom(req.Name, req.WaitingRoom, req.UserID)
	log.Info().Str("module", "adapters.http").
		Str("room", string(room.Info().ID)).
		Str("host", string(req.UserID)).Msg("room created")
	ok(c, room.Info())
}

type joinRoomResp struct {
	Room domain.Room `json:"room"`
	Role domain.Role `json:"role"`
}

func (rc *RoomController) JoinByID(c *gin.Context) {
	room, found := rc.Hub.GetRoom(domain.RoomID(c.Param("id")))
	if !found {
		fail(c, http.StatusNotFound, "room not found")
		return
	}
	rc.join(c, room)
}

func (rc *RoomController) JoinByKey(c *gin.Context) {
	room, found := rc.Hub.GetRoomByKey(domain.RoomKey(c.Param("key")))
	if !found {
		fail(c, http.StatusNotFound, "room not found")
		return
	}
	rc.join(c, room)
}

// join resolves the caller's role. Membership itself is established over the
// websocket; this call only validates the room and hands back its descriptor.
func (rc *RoomController) join(c *gin.Context, room *hub.Room) {
	var id identity
	if err := c.ShouldBindJSON(&id); err != nil {
		fail(c, http.StatusBadRequest, "bad payload")
		return
	}
	if err := domain.ValidUsername(id.Username); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	role := domain.RoleGuest
	if room.IsHost(id.UserID) {
		role = domain.RoleHost
	}
	ok(c, joinRoomResp{Room: room.Info(), Role: role})
}

func (rc *RoomController) Leave(c *gin.Context) {
	// The authoritative leave travels over the websocket; the REST call is
	// advisory and always succeeds for a known room.
	if _, found := rc.Hub.GetRoom(domain.RoomID(c.Param("id"))); !found {
		fail(c, http.StatusNotFound, "room not found")
		return
	}
	ok(c, nil)
}

func (rc *RoomController) Participants(c *gin.Context) {
	room, found := rc.Hub.GetRoom(domain.RoomID(c.Param("id")))
	if !found {
		fail(c, http.StatusNotFound, "room not found")
		return
	}
	ok(c, room.Participants())
}
