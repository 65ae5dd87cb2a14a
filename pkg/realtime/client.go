package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hrm-api/pkg/logger"
)

// Config configures a session client.
type Config struct {
	// BaseURL is the API origin, e.g. "https://hr.example.com". The
	// websocket endpoints are derived from it.
	BaseURL string
	Token   string
	UserID  uuid.UUID

	HTTPClient *http.Client
	Dialer     Dialer
	Logger     *logger.Logger
}

// Client is the authenticated realtime session: one connection per logical
// channel, and one unread store every consumer shares. It is the single
// object a UI injects; widgets subscribe through it instead of opening their
// own connections.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logger.Logger

	Notifications *Conn
	Chat          *Conn
	Unread        *UnreadStore
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger(nil)
	}

	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: cfg.Logger,
		Unread: NewUnreadStore(),
	}
	c.Unread.SetAckFunc(c.acknowledgeRead)

	c.Notifications = NewConn(ConnConfig{
		URL:     wsURL(cfg.BaseURL, "/api/v1/ws/notifications"),
		Token:   cfg.Token,
		CatchUp: c.refreshNotificationBaseline,
		Dialer:  cfg.Dialer,
		Logger:  cfg.Logger,
	})
	c.Chat = NewConn(ConnConfig{
		URL:     wsURL(cfg.BaseURL, "/api/v1/ws/chat"),
		Token:   cfg.Token,
		CatchUp: c.refreshChatBaseline,
		Dialer:  cfg.Dialer,
		Logger:  cfg.Logger,
	})

	// Every live event funnels into the shared unread store; the store
	// handles self-echo suppression.
	c.Notifications.Subscribe(KindNotificationCreated, c.applyEvent)
	c.Chat.Subscribe(KindMessageDirect, c.applyEvent)
	c.Chat.Subscribe(KindMessageGroup, c.applyEvent)

	return c
}

// Start connects both channels. Each connect runs its baseline fetch before
// any live event is applied.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Notifications.Start(ctx); err != nil {
		return fmt.Errorf("notification channel: %w", err)
	}
	if err := c.Chat.Start(ctx); err != nil {
		c.Notifications.Stop()
		return fmt.Errorf("chat channel: %w", err)
	}
	return nil
}

// Stop tears down both channels, e.g. on logout.
func (c *Client) Stop() {
	c.Notifications.Stop()
	c.Chat.Stop()
}

// OnNotification registers a handler for broadcast notifications.
func (c *Client) OnNotification(fn Handler) func() {
	return c.Notifications.Subscribe(KindNotificationCreated, fn)
}

// OnDirectMessage registers a handler for direct messages.
func (c *Client) OnDirectMessage(fn Handler) func() {
	return c.Chat.Subscribe(KindMessageDirect, fn)
}

// OnGroupMessage registers a handler for group messages.
func (c *Client) OnGroupMessage(fn Handler) func() {
	return c.Chat.Subscribe(KindMessageGroup, fn)
}

// MarkRead clears a scope key locally and acknowledges it server-side.
func (c *Client) MarkRead(key string) {
	c.Unread.MarkRead(key)
}

// MarkUnread flags a scope key locally.
func (c *Client) MarkUnread(key string) {
	c.Unread.MarkUnread(key)
}

// HasNewNotification reports whether any notification is unread.
func (c *Client) HasNewNotification() bool {
	return c.Unread.HasNewNotification()
}

// HasNewMessage reports whether any conversation is unread.
func (c *Client) HasNewMessage() bool {
	return c.Unread.HasNewMessage()
}

func (c *Client) applyEvent(ev Event) {
	c.Unread.Apply(ev, c.cfg.UserID)
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) refreshNotificationBaseline(ctx context.Context) error {
	var items []struct {
		ID   uuid.UUID `json:"id"`
		Read bool      `json:"read"`
	}
	if err := c.getJSON(ctx, "/api/v1/notifications", &items); err != nil {
		return err
	}

	records := make([]BaselineRecord, 0, len(items))
	for _, it := range items {
		records = append(records, BaselineRecord{Key: it.ID.String(), Unread: !it.Read})
	}
	c.Unread.Baseline(DomainNotifications, records)
	return nil
}

func (c *Client) refreshChatBaseline(ctx context.Context) error {
	var items []struct {
		ConversationKey string `json:"conversation_key"`
		Unread          bool   `json:"unread"`
	}
	if err := c.getJSON(ctx, "/api/v1/conversations", &items); err != nil {
		return err
	}

	records := make([]BaselineRecord, 0, len(items))
	for _, it := range items {
		records = append(records, BaselineRecord{Key: it.ConversationKey, Unread: it.Unread})
	}
	c.Unread.Baseline(DomainChat, records)
	return nil
}

func (c *Client) acknowledgeRead(domain Domain, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var path string
	switch domain {
	case DomainNotifications:
		path = "/api/v1/notifications/" + key + "/read"
	case DomainChat:
		path = "/api/v1/conversations/" + key + "/read"
	}

	if err := c.postJSON(ctx, path); err != nil {
		// The local flag is already cleared; the next baseline re-raises it
		// if the server never learned about the read.
		c.logger.Warn("read acknowledgement failed", "key", key, "error", err.Error())
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if envelope.Status != "success" {
		return fmt.Errorf("GET %s: %s", path, envelope.Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *Client) postJSON(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("POST %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

func wsURL(baseURL, path string) string {
	u := baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + path
}
