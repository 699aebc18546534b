package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
)

const (
	defaultSendBuffer   = 32
	defaultPingInterval = 30 * time.Second
)

// Socket is the subset of a websocket connection used by the pumps.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ClientOptions tunes a client's queue and keepalive.
type ClientOptions struct {
	SendBuffer   int
	PingInterval time.Duration
	Logger       zerolog.Logger
}

// Client is one websocket connection: a buffered outbound queue drained by
// WritePump and an inbound frame loop run by ReadPump.
type Client struct {
	id       string
	identity Identity
	socket   Socket
	send     chan dto.Event
	closed   chan struct{}
	once     sync.Once
	ping     time.Duration
	log      zerolog.Logger
}

// NewClient wraps socket for identity.
func NewClient(socket Socket, identity Identity, opts ClientOptions) *Client {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}

	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		socket:   socket,
		send:     make(chan dto.Event, buffer),
		closed:   make(chan struct{}),
		ping:     ping,
		log:      opts.Logger.With().Str("component", "chat_client").Str("conn_id", id).Str("user_id", identity.UserID).Logger(),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.identity.UserID }

func (c *Client) Identity() Identity { return c.identity }

// Send enqueues event. It never blocks: a full queue or a closed client drops the event.
func (c *Client) Send(event dto.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Done is closed once the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// ReadPump delivers every inbound frame to handle until the socket fails.
func (c *Client) ReadPump(handle func(raw []byte)) {
	defer c.Close()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("chat read loop ended")
			return
		}
		handle(raw)
	}
}

// WritePump drains the outbound queue in order and keeps the socket alive.
func (c *Client) WritePump() {
	defer c.Close()

	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			if err := c.socket.WriteJSON(event); err != nil {
				c.log.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.socket.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.log.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close shuts the client down once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.socket.Close()
	})
}
