package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

const writeTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	URL    string
	Tokens oauth2.TokenSource
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Client is one connection to the event channel.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// Dial opens the connection. The bearer token is read once, at dial time.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("realtime: no token source")
	}
	token, err := cfg.Tokens.Token()
	if err != nil {
		return nil, err
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	header.Set("Authorization", token.Type()+" "+token.AccessToken)

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (status %d): %w", cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}

	logger.Debug("realtime connected", "url", cfg.URL)
	return &Client{
		conn:   conn,
		logger: logger,
		closed: make(chan struct{}),
	}, nil
}

// Join subscribes to rooms.
func (c *Client) Join(rooms ...string) error {
	for _, room := range rooms {
		if err := c.send(Command{Action: ActionJoin, Room: room}); err != nil {
			return fmt.Errorf("failed to join room %s: %w", room, err)
		}
	}
	return nil
}

func (c *Client) send(cmd Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(cmd)
}

// Run reads messages and dispatches them until ctx is cancelled or the
// connection fails. It returns nil when stopped by ctx or Close.
func (c *Client) Run(ctx context.Context, d *Dispatcher) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("realtime connection lost: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropped malformed event", "error", err)
			continue
		}
		if msg.Event == "" {
			continue
		}

		c.logger.Debug("event received", "event", msg.Event, "room", msg.Room)
		if !d.Dispatch(msg) {
			c.logger.Debug("event ignored", "event", msg.Event)
		}
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
