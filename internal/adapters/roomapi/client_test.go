package roomapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

func respond(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	}))
}

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "standup", body["name"])
		assert.Equal(t, true, body["waiting_room"])
		assert.Equal(t, "me", body["user_id"])

		respond(t, w, domain.Room{ID: "r1", Key: "ABCDEF123", Name: "standup", WaitingRoom: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "me", "Me")
	room, err := c.CreateRoom(context.Background(), "standup", true)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("r1"), room.ID)
	assert.True(t, room.WaitingRoom)
}

func TestJoinRoomByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/r1/join", r.URL.Path)
		respond(t, w, core.JoinRoomResult{
			Room: domain.Room{ID: "r1"},
			Role: domain.RoleGuest,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "me", "Me")
	res, err := c.JoinRoomByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGuest, res.Role)
	assert.Equal(t, domain.RoomID("r1"), res.Room.ID)
}

func TestJoinRoomByKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/key/ABCDEF123/join", r.URL.Path)
		respond(t, w, core.JoinRoomResult{Room: domain.Room{ID: "r1"}, Role: domain.RoleHost})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "me", "Me")
	res, err := c.JoinRoomByKey(context.Background(), "ABCDEF123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, res.Role)
}

func TestGetParticipants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rooms/r1/participants", r.URL.Path)
		respond(t, w, []domain.Participant{{UserID: "alice", ConnectionID: "c1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "me", "Me")
	list, err := c.GetParticipants(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.UserID("alice"), list[0].UserID)
}

func TestAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", "me", "Me")
	_, err := c.JoinRoomByID(context.Background(), "r1")
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "room not found",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "me", "Me")
	_, err := c.JoinRoomByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room not found")
}

func TestLeaveRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/r1/leave", r.URL.Path)
		respond(t, w, nil)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "me", "Me")
	assert.NoError(t, c.LeaveRoom(context.Background(), "r1"))
}
