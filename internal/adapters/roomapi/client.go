// Package roomapi consumes the room-state REST service: join/leave and the
// authoritative participant snapshot used for post-reconnect resync.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

// apiResponse is the service's uniform envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	userID  domain.UserID
	name    string
}

var _ core.RoomAPI = (*Client)(nil)

func NewClient(baseURL, token string, userID domain.UserID, username string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		userID:  userID,
		name:    username,
	}
}

func (c *Client) CreateRoom(ctx context.Context, name string, waitingRoom bool) (domain.Room, error) {
	body := map[string]any{
		"name":         name,
		"waiting_room": waitingRoom,
		"user_id":      c.userID,
	}
	var room domain.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (c *Client) JoinRoomByID(ctx context.Context, id domain.RoomID) (core.JoinRoomResult, error) {
	var res core.JoinRoomResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%s/join", id), c.identity(), &res)
	return res, err
}

func (c *Client) JoinRoomByKey(ctx context.Context, key domain.RoomKey) (core.JoinRoomResult, error) {
	var res core.JoinRoomResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/key/%s/join", key), c.identity(), &res)
	return res, err
}

func (c *Client) LeaveRoom(ctx context.Context, id domain.RoomID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%s/leave", id), c.identity(), nil)
}

func (c *Client) GetParticipants(ctx context.Context, id domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%s/participants", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) identity() map[string]any {
	return map[string]any{"user_id": c.userID, "username": c.name}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return core.ErrAuth
	}

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: %s", method, path, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}
