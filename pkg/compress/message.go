package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateTail is the empty stored block a sync flush appends. The
// per-message-deflate wire contract requires it stripped from outgoing
// frames; receivers restore it before inflating.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// finalBlock is an empty final stored block appended after the restored tail
// so the inflater terminates cleanly on a stripped stream.
var finalBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

// windowSize is the DEFLATE sliding window: the trailing plaintext carried
// as the next message's dictionary under context takeover.
const windowSize = 32 << 10

// MessageCodec implements WebSocket per-message-deflate for one logical
// connection. It lives as long as the connection so the sliding-window
// dictionary can persist across messages when context takeover is
// negotiated; with takeover disabled every message is compressed and
// inflated independently.
//
// A MessageCodec is exclusively owned by its connection's worker. The raw
// primitive is never exposed; callers only see whole-message operations.
type MessageCodec struct {
	takeover bool
	settings

	compDict   []byte // trailing plaintext sent, compress direction
	decompDict []byte // trailing plaintext received, decompress direction
	received   bool   // a message was successfully decompressed
}

// NewMessageCodec creates a per-message-deflate codec. contextTakeover
// mirrors the negotiated extension parameter.
func NewMessageCodec(contextTakeover bool, opts ...Option) *MessageCodec {
	return &MessageCodec{takeover: contextTakeover, settings: newSettings(opts)}
}

// SetDictionary installs the initial decompression dictionary announced by
// the peer. Only meaningful before the first message of a connection.
func (mc *MessageCodec) SetDictionary(dict []byte) {
	mc.decompDict = append([]byte(nil), dict...)
}

// Dictionary returns the current decompression dictionary: the trailing
// window of plaintext recovered so far. Empty until a message has been
// decompressed or SetDictionary was called.
func (mc *MessageCodec) Dictionary() []byte {
	return mc.decompDict
}

// Reset discards all carried state, as required when the connection
// renegotiates or when a no-context-takeover peer expects a fresh stream.
func (mc *MessageCodec) Reset() {
	mc.compDict = nil
	mc.decompDict = nil
	mc.received = false
}

// CompressMessage compresses one whole outgoing message. Interior ChunkSize
// slices ride with no flush so their compressed form may depend on
// forthcoming data; the final slice is sync-flushed and the resulting
// 4-byte 00 00 FF FF trailer stripped unconditionally.
func (mc *MessageCodec) CompressMessage(msg []byte) ([]byte, error) {
	out := &chunkedBuffer{limit: mc.maxOutput}

	fw, err := flate.NewWriterDict(out, mc.level, mc.compDict)
	if err != nil {
		return nil, codecErr(err)
	}

	for _, part := range chunks(msg) {
		if _, err := fw.Write(part); err != nil {
			return nil, codecErr(err)
		}
	}
	if err := fw.Flush(); err != nil {
		return nil, codecErr(err)
	}
	if out.Len() < len(deflateTail) {
		return nil, fmt.Errorf("%w: sync flush produced %d bytes", ErrCodec, out.Len())
	}
	out.Truncate(len(deflateTail))

	if mc.takeover {
		mc.compDict = carry(mc.compDict, msg)
	} else {
		mc.compDict = nil
	}
	return append([]byte(nil), out.Bytes()...), nil
}

// DecompressMessage inflates one whole incoming message frame (trailer
// already stripped by the sender). On success the trailing window of the
// recovered plaintext becomes the dictionary for the next message while
// context takeover is enabled.
func (mc *MessageCodec) DecompressMessage(frame []byte) ([]byte, error) {
	src := io.MultiReader(
		bytes.NewReader(frame),
		bytes.NewReader(deflateTail),
		bytes.NewReader(finalBlock),
	)
	fr := flate.NewReaderDict(src, mc.decompDict)
	defer fr.Close()

	out := &chunkedBuffer{limit: mc.maxOutput}
	if err := drain(out, fr); err != nil {
		if errors.Is(err, ErrOutputLimit) {
			return nil, err
		}
		// A failure on the very first message, with no dictionary ever
		// installed, means the peer compressed against prior state we do not
		// have. Raw deflate cannot signal need-dictionary explicitly, so
		// this is surfaced here and nowhere else.
		if mc.takeover && !mc.received && len(mc.decompDict) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrDictionaryRequired, err)
		}
		return nil, err
	}

	// Always a non-nil slice, so an empty message stays distinguishable from
	// "no message" at the call sites.
	msg := make([]byte, out.Len())
	copy(msg, out.Bytes())
	mc.received = true
	if mc.takeover {
		mc.decompDict = carry(mc.decompDict, msg)
	} else {
		mc.decompDict = nil
	}
	return msg, nil
}

// carry returns the trailing windowSize bytes of prev followed by msg.
func carry(prev, msg []byte) []byte {
	if len(msg) >= windowSize {
		return append([]byte(nil), msg[len(msg)-windowSize:]...)
	}
	keep := windowSize - len(msg)
	if keep > len(prev) {
		keep = len(prev)
	}
	out := make([]byte, 0, keep+len(msg))
	out = append(out, prev[len(prev)-keep:]...)
	return append(out, msg...)
}
