// Package notifications is a client for the real-time notification socket.
// The socket only hints at changes; the REST inbox stays the source of
// truth, so nothing here is queued or retried while offline.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/services"
)

// Inbound events.
const (
	EventNew          = "notification:new"
	EventBroadcast    = "notification:broadcast"
	EventBadge        = "badge:update"
	EventList         = "notifications:list"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventHeartbeatAck = "heartbeat:ack"
)

// Outbound events.
const (
	EmitHeartbeat   = "heartbeat"
	EmitSubscribe   = "subscribe:topic"
	EmitUnsubscribe = "unsubscribe:topic"
	EmitRead        = "notification:read"
	EmitArchive     = "notification:archive"
	EmitRequestList = "request:notifications"
)

const (
	defaultHeartbeat  = 30 * time.Second
	defaultResync     = 5 * time.Minute
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	maxKept           = 50
	writeTimeout      = 10 * time.Second
)

// ErrUnauthorized means the server refused the token; reconnecting with the
// same token is pointless.
var ErrUnauthorized = errors.New("notification socket rejected the token")

// Event is one frame on the socket.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Options configure a Client.
type Options struct {
	URL         string
	Token       string
	Heartbeat   time.Duration
	ResyncEvery time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Dialer      *websocket.Dialer
	// OnEvent sees every inbound event after the client applied it.
	OnEvent func(Event)
}

// Client keeps a socket open, reconnecting as needed, and tracks the
// unread badge and the most recent notifications.
type Client struct {
	opts Options

	mu        sync.RWMutex
	conn      *websocket.Conn
	unread    int
	items     []services.Notification
	topics    map[string]bool
	lastAckAt time.Time

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.ResyncEvery <= 0 {
		opts.ResyncEvery = defaultResync
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = defaultMaxBackoff
		if opts.MaxBackoff < opts.MinBackoff {
			opts.MaxBackoff = opts.MinBackoff
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts, topics: make(map[string]bool)}
}

// Run connects and keeps reconnecting with capped exponential backoff
// until ctx is done or the server rejects the token.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		connected, err := c.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if connected {
			backoff = c.opts.MinBackoff
		}
		log.Warn().Err(err).Str("component", "notifications").Dur("retry_in", backoff).Msg("socket disconnected")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

// serve runs one connection until it drops.
func (c *Client) serve(ctx context.Context) (bool, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("dial notification socket: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.detach(conn)
	c.attach(conn)

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()
	go c.keepAlive(connCtx)

	log.Info().Str("component", "notifications").Msg("socket connected")
	for _, topic := range c.Topics() {
		c.Subscribe(topic)
	}
	c.RequestSync()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Debug().Err(err).Str("component", "notifications").Msg("ignoring malformed frame")
			continue
		}
		c.apply(ev)
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

// keepAlive sends heartbeats and periodic resync requests for the lifetime
// of one connection.
func (c *Client) keepAlive(ctx context.Context) {
	heartbeat := time.NewTicker(c.opts.Heartbeat)
	defer heartbeat.Stop()
	resync := time.NewTicker(c.opts.ResyncEvery)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.emit(EmitHeartbeat, nil)
		case <-resync.C:
			c.RequestSync()
		}
	}
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// UnreadCount is the last known unread badge.
func (c *Client) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// Notifications returns the most recent notifications, newest first.
func (c *Client) Notifications() []services.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]services.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Topics returns the topics the server confirmed or that were requested.
func (c *Client) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// LastHeartbeatAck is when the server last acknowledged a heartbeat.
func (c *Client) LastHeartbeatAck() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAckAt
}

// Subscribe asks for a topic. Like every action it is dropped while
// offline and reports whether it was sent.
func (c *Client) Subscribe(topic string) bool {
	if !c.emit(EmitSubscribe, map[string]string{"topic": topic}) {
		return false
	}
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
	return true
}

func (c *Client) Unsubscribe(topic string) bool {
	if !c.emit(EmitUnsubscribe, map[string]string{"topic": topic}) {
		return false
	}
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	return true
}

// MarkRead marks one notification read and updates the local badge.
func (c *Client) MarkRead(id string) bool {
	if !c.emit(EmitRead, map[string]string{"notificationId": id}) {
		return false
	}
	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == id && !c.items[i].Read {
			c.items[i].Read = true
			if c.unread > 0 {
				c.unread--
			}
		}
	}
	c.mu.Unlock()
	return true
}

// Archive removes a notification from the local list.
func (c *Client) Archive(id string) bool {
	if !c.emit(EmitArchive, map[string]string{"notificationId": id}) {
		return false
	}
	c.mu.Lock()
	kept := c.items[:0]
	for _, n := range c.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	c.items = kept
	c.mu.Unlock()
	return true
}

// RequestSync asks the server to resend the list and badge.
func (c *Client) RequestSync() bool {
	return c.emit(EmitRequestList, nil)
}

func (c *Client) emit(name string, data any) bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return false
	}

	ev := Event{Name: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return false
		}
		ev.Data = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		log.Debug().Err(err).Str("component", "notifications").Str("event", name).Msg("emit failed")
		return false
	}
	return true
}

type listPayload struct {
	Notifications []services.Notification `json:"notifications"`
	UnreadCount   *int                    `json:"unreadCount"`
}

type badgePayload struct {
	UnreadCount int `json:"unreadCount"`
}

type topicPayload struct {
	Topic string `json:"topic"`
}

func (c *Client) apply(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Name {
	case EventNew, EventBroadcast:
		var n services.Notification
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			return
		}
		c.items = append([]services.Notification{n}, c.items...)
		if len(c.items) > maxKept {
			c.items = c.items[:maxKept]
		}
		if !n.Read {
			c.unread++
		}
	case EventBadge:
		var b badgePayload
		if err := json.Unmarshal(ev.Data, &b); err == nil {
			c.unread = b.UnreadCount
		}
	case EventList:
		var l listPayload
		if err := json.Unmarshal(ev.Data, &l); err != nil {
			return
		}
		c.items = l.Notifications
		if len(c.items) > maxKept {
			c.items = c.items[:maxKept]
		}
		if l.UnreadCount != nil {
			c.unread = *l.UnreadCount
		} else {
			c.unread = 0
			for _, n := range c.items {
				if !n.Read {
					c.unread++
				}
			}
		}
	case EventSubscribed:
		var t topicPayload
		if err := json.Unmarshal(ev.Data, &t); err == nil && t.Topic != "" {
			c.topics[t.Topic] = true
		}
	case EventUnsubscribed:
		var t topicPayload
		if err := json.Unmarshal(ev.Data, &t); err == nil {
			delete(c.topics, t.Topic)
		}
	case EventHeartbeatAck:
		c.lastAckAt = time.Now()
	}
}
