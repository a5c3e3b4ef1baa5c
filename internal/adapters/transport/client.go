// Package transport is the websocket signaling channel to the meeting hub.
// It reconnects on unexpected drops with bounded randomized backoff; an
// intentional Close suppresses reconnects entirely.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	URL   string
	Token string // bearer credential, checked by the hub boundary

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client implements core.SignalTransport over gorilla/websocket.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   *websocket.Conn
	connID domain.ConnectionID
	epoch  int

	events     chan core.Event
	reconnects chan int
	outgoing   chan []byte
	dropped    chan struct{}

	intentional atomic.Bool
	cancel      context.CancelFunc
	pumps       sync.WaitGroup
}

var _ core.SignalTransport = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 10 * time.Second
	}
	return &Client{
		opts:       opts,
		events:     make(chan core.Event, 64),
		reconnects: make(chan int, 4),
		outgoing:   make(chan []byte, 64),
		dropped:    make(chan struct{}, 1),
	}
}

// Connect dials the hub and starts the pumps plus the reconnect supervisor.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.dial(ctx); err != nil {
		cancel()
		return err
	}
	go c.supervise(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %v", core.ErrAuth, err)
		}
		return fmt.Errorf("dial signaling: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	epochCtx, epochCancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.conn = conn
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	c.pumps.Add(2)
	go c.readPump(conn, epochCancel)
	go c.writePump(epochCtx, conn)

	log.Info().Str("module", "transport").Int("epoch", epoch).Msg("signaling connected")
	return nil
}

// supervise redials after unexpected drops. One epoch at a time.
func (c *Client) supervise(ctx context.Context) {
	defer func() {
		c.pumps.Wait()
		close(c.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.dropped:
		}
		if c.intentional.Load() {
			return
		}
		log.Warn().Str("module", "transport").Msg("signaling dropped, reconnecting")

		backoff := c.opts.ReconnectMin
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			if c.intentional.Load() {
				return
			}
			if err := c.dial(ctx); err == nil {
				break
			} else if errors.Is(err, core.ErrAuth) {
				log.Error().Err(err).Str("module", "transport").Msg("reconnect refused")
				return
			}
			if backoff *= 2; backoff > c.opts.ReconnectMax {
				backoff = c.opts.ReconnectMax
			}
		}

		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()
		select {
		case c.reconnects <- epoch:
		default:
		}
	}
}

// jitter spreads reconnects of many clients over [d/2, d).
func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func (c *Client) readPump(conn *websocket.Conn, epochCancel context.CancelFunc) {
	defer func() {
		epochCancel()
		_ = conn.Close()
		c.pumps.Done()
		select {
		case c.dropped <- struct{}{}:
		default:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.intentional.Load() {
				log.Warn().Err(err).Str("module", "transport").Msg("read error")
			}
			return
		}
		evt, err := core.DecodeEvent(data)
		if err != nil {
			log.Error().Err(err).Str("module", "transport").Msg("bad frame")
			continue
		}
		if evt.Type == core.EvtConnected {
			var p struct {
				ConnectionID domain.ConnectionID `json:"connectionId"`
			}
			if err := json.Unmarshal(evt.Data, &p); err == nil {
				c.mu.Lock()
				c.connID = p.ConnectionID
				c.mu.Unlock()
			}
			continue
		}
		c.events <- evt
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		c.pumps.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.outgoing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "transport").Msg("write error")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues one command. Ordered within the current epoch.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	select {
	case c.outgoing <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) Events() <-chan core.Event { return c.events }

func (c *Client) Reconnects() <-chan int { return c.reconnects }

func (c *Client) ConnectionID() domain.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Close disconnects for good. No resync is triggered for this closure.
func (c *Client) Close() {
	if !c.intentional.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "transport").Msg("signaling closed")
}
