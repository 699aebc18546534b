package chatclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noah-isme/gema-chat/internal/dto"
)

const writeWait = 5 * time.Second

// Stream is the client end of the push channel.
type Stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

// Dial opens the push channel at wsURL (for example ws://host/api/v1/ws),
// authenticating with token as a query parameter.
func Dial(ctx context.Context, wsURL, token string, header http.Header) (*Stream, error) {
	target, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	if token != "" {
		query := target.Query()
		query.Set("token", token)
		target.RawQuery = query.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, target.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Kind: kindForStatus(resp.StatusCode), Message: err.Error()}
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}

	return &Stream{conn: conn}, nil
}

// SendSignal writes one client signal frame.
func (s *Stream) SendSignal(signal dto.Signal) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(signal)
}

// Next blocks until the next push frame arrives.
func (s *Stream) Next() ([]byte, error) {
	_, raw, err := s.conn.ReadMessage()
	return raw, err
}

// Close sends a close frame and releases the connection.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Run attaches stream to c and applies push frames until the stream fails or
// ctx is done. Frames that cannot be applied are logged and skipped.
func (c *Client) Run(ctx context.Context, stream *Stream) error {
	c.Attach(stream)
	defer func() {
		c.Attach(nil)
		c.Disconnected()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stop:
		}
	}()

	for {
		raw, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("push channel closed: %w", err)
		}
		if err := c.Handle(ctx, raw); err != nil {
			c.logger.Warn().Err(err).Msg("push frame not applied")
		}
	}
}
