// Package ws exposes WebSocket endpoints whose data messages ride the
// per-message-deflate codec. gorilla/websocket handles framing and the
// upgrade handshake; its built-in compression stays disabled because it
// cannot carry the sliding-window dictionary across messages, which is
// exactly what the MessageCodec is for.
package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/serviohq/servio/pkg/compress"
	"github.com/serviohq/servio/pkg/logging"
	"github.com/serviohq/servio/pkg/observability"
)

// MessageHandler processes one decompressed message and returns an optional
// reply to send back on the same connection.
type MessageHandler func(c *Conn, payload []byte) ([]byte, error)

// Parameters are the negotiated compression settings of an endpoint. When
// Compression is on, every data message on the endpoint is compressed; peers
// must run the matching codec.
type Parameters struct {
	Compression     bool
	ContextTakeover bool
	Level           int // 0 = codec default
	MaxMessageBytes int // 0 = unbounded
}

// Endpoint upgrades HTTP requests to WebSocket connections and runs one
// message loop per connection.
type Endpoint struct {
	upgrader websocket.Upgrader
	params   Parameters
	handler  MessageHandler
	clients  map[*websocket.Conn]*Conn
	mu       sync.RWMutex
	logger   logging.Logger
}

var _ http.Handler = (*Endpoint)(nil)

// NewEndpoint creates a WebSocket endpoint.
func NewEndpoint(params Parameters, handler MessageHandler, logger logging.Logger) *Endpoint {
	if logger == nil {
		logger = logging.NewNop()
	}
	if handler == nil {
		handler = func(*Conn, []byte) ([]byte, error) { return nil, nil }
	}
	return &Endpoint{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			EnableCompression: false,
		},
		params:  params,
		handler: handler,
		clients: make(map[*websocket.Conn]*Conn),
		logger:  logger,
	}
}

// ServeHTTP upgrades the request and starts the connection's message loop.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	conn := &Conn{
		ws:       wsConn,
		endpoint: e,
	}
	if e.params.Compression {
		opts := []compress.Option{}
		if e.params.Level > 0 {
			opts = append(opts, compress.WithLevel(e.params.Level))
		}
		if e.params.MaxMessageBytes > 0 {
			opts = append(opts, compress.WithMaxOutput(e.params.MaxMessageBytes))
		}
		conn.codec = compress.NewMessageCodec(e.params.ContextTakeover, opts...)
	}

	e.mu.Lock()
	e.clients[wsConn] = conn
	e.mu.Unlock()

	go conn.handleMessages()
}

// removeClient removes a connection and closes its socket.
func (e *Endpoint) removeClient(wsConn *websocket.Conn) {
	e.mu.Lock()
	_, ok := e.clients[wsConn]
	delete(e.clients, wsConn)
	e.mu.Unlock()

	if ok {
		wsConn.Close()
	}
}

// Conn is one upgraded connection. Its codec - and therefore its carried
// dictionary - is owned by the connection's message loop.
type Conn struct {
	ws       *websocket.Conn
	codec    *compress.MessageCodec
	endpoint *Endpoint
	writeMu  sync.Mutex
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// handleMessages reads, decompresses, and dispatches data messages until the
// connection drops or a protocol violation forces a close.
func (c *Conn) handleMessages() {
	defer c.endpoint.removeClient(c.ws)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.endpoint.logger.Errorf("websocket read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		observability.Get().WSMessagesRecv.Inc()

		payload := data
		if c.codec != nil {
			observability.Get().CodecBytesIn.WithLabelValues("message", "decompress").Add(float64(len(data)))
			payload, err = c.codec.DecompressMessage(data)
			if err != nil {
				observability.Get().CodecFailures.WithLabelValues("message", "decompress").Inc()
				if errors.Is(err, compress.ErrDictionaryRequired) {
					// The peer assumed shared compression state we never
					// had: a protocol violation, not a transient failure.
					c.closeWith(websocket.ClosePolicyViolation, "missing compression context")
					return
				}
				c.endpoint.logger.Errorf("decompress failed from %s: %v", c.RemoteAddr(), err)
				c.closeWith(websocket.CloseInvalidFramePayloadData, "bad compressed payload")
				return
			}
			observability.Get().CodecBytesOut.WithLabelValues("message", "decompress").Add(float64(len(payload)))
		}

		reply, err := c.endpoint.handler(c, payload)
		if err != nil {
			c.endpoint.logger.Errorf("handler error from %s: %v", c.RemoteAddr(), err)
			continue
		}
		if reply == nil {
			continue
		}
		if err := c.Send(messageType, reply); err != nil {
			c.endpoint.logger.Errorf("websocket write error: %v", err)
			return
		}
	}
}

// Send compresses (when negotiated) and writes one data message.
func (c *Conn) Send(messageType int, payload []byte) error {
	frame := payload
	if c.codec != nil {
		observability.Get().CodecBytesIn.WithLabelValues("message", "compress").Add(float64(len(payload)))
		var err error
		frame, err = c.codec.CompressMessage(payload)
		if err != nil {
			observability.Get().CodecFailures.WithLabelValues("message", "compress").Inc()
			return err
		}
		observability.Get().CodecBytesOut.WithLabelValues("message", "compress").Add(float64(len(frame)))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(messageType, frame); err != nil {
		return err
	}
	observability.Get().WSMessagesSent.Inc()
	return nil
}

// closeWith sends a close control frame and drops the connection.
func (c *Conn) closeWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
