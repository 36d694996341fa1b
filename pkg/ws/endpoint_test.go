package ws

import (
	"bytes"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/serviohq/servio/pkg/compress"
	"github.com/serviohq/servio/pkg/logging"
)

// dial connects a test client to the endpoint's server.
func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEndpointPlainEcho(t *testing.T) {
	ep := NewEndpoint(Parameters{Compression: false}, func(c *Conn, payload []byte) ([]byte, error) {
		return payload, nil
	}, logging.NewNop())

	srv := httptest.NewServer(ep)
	defer srv.Close()

	conn := dial(t, srv)
	want := []byte("hello over the wire")
	if err := conn.WriteMessage(websocket.TextMessage, want); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	mt, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if mt != websocket.TextMessage || !bytes.Equal(got, want) {
		t.Errorf("echo = type %d, %q; want text %q", mt, got, want)
	}
}

func TestEndpointCompressedEcho(t *testing.T) {
	ep := NewEndpoint(Parameters{Compression: true, ContextTakeover: true}, func(c *Conn, payload []byte) ([]byte, error) {
		return payload, nil
	}, logging.NewNop())

	srv := httptest.NewServer(ep)
	defer srv.Close()

	conn := dial(t, srv)

	// The client runs the mirror codec: its compression context tracks what
	// it sends, its decompression context tracks what the server sends.
	codec := compress.NewMessageCodec(true)

	messages := [][]byte{
		[]byte("first message on this connection"),
		[]byte("second message, sharing the window with the first"),
		bytes.Repeat([]byte("repetition pays off under context takeover "), 200),
		{},
	}
	for i, want := range messages {
		frame, err := codec.CompressMessage(want)
		if err != nil {
			t.Fatalf("message %d: CompressMessage: %v", i, err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("message %d: WriteMessage: %v", i, err)
		}

		_, reply, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: ReadMessage: %v", i, err)
		}
		got, err := codec.DecompressMessage(reply)
		if err != nil {
			t.Fatalf("message %d: DecompressMessage: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d: round trip = %q, want %q", i, got, want)
		}
	}
}

// An empty message is still a message: the echo must come back instead of
// being mistaken for a handler that chose not to reply.
func TestEndpointCompressedEmptyMessageEchoed(t *testing.T) {
	ep := NewEndpoint(Parameters{Compression: true, ContextTakeover: true}, func(c *Conn, payload []byte) ([]byte, error) {
		return payload, nil
	}, logging.NewNop())

	srv := httptest.NewServer(ep)
	defer srv.Close()

	conn := dial(t, srv)
	codec := compress.NewMessageCodec(true)

	frame, err := codec.CompressMessage(nil)
	if err != nil {
		t.Fatalf("CompressMessage: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v (empty message was not echoed)", err)
	}
	got, err := codec.DecompressMessage(reply)
	if err != nil {
		t.Fatalf("DecompressMessage: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("echo of empty message = %q, want empty", got)
	}
}

func TestEndpointNilHandler(t *testing.T) {
	ep := NewEndpoint(Parameters{}, nil, logging.NewNop())

	srv := httptest.NewServer(ep)
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("into the void")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	// No reply is expected; the connection must survive the message rather
	// than die in the read loop.
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("unexpected reply from nil handler")
	}
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Fatalf("connection dropped: %v", err)
	}
}

func TestEndpointHandlerErrorKeepsConnection(t *testing.T) {
	ep := NewEndpoint(Parameters{}, func(c *Conn, payload []byte) ([]byte, error) {
		if bytes.Equal(payload, []byte("bad")) {
			return nil, errBad
		}
		return payload, nil
	}, logging.NewNop())

	srv := httptest.NewServer(ep)
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("bad")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("good")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(got) != "good" {
		t.Errorf("reply after handler error = %q, want %q", got, "good")
	}
}

func TestEndpointBadPayloadCloses(t *testing.T) {
	ep := NewEndpoint(Parameters{Compression: true, ContextTakeover: false}, func(c *Conn, payload []byte) ([]byte, error) {
		return payload, nil
	}, logging.NewNop())

	srv := httptest.NewServer(ep)
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the server to close the connection")
	}
	if !websocket.IsCloseError(err, websocket.CloseInvalidFramePayloadData) {
		t.Errorf("close error = %v, want CloseInvalidFramePayloadData", err)
	}
}

var errBad = &handlerError{"rejected"}

type handlerError struct{ msg string }

func (e *handlerError) Error() string { return e.msg }
