package request

import "net"

// CompressionMode is the content encoding negotiated for a connection.
type CompressionMode int

const (
	// CompressionNone sends bodies uncompressed.
	CompressionNone CompressionMode = iota

	// CompressionGzip wraps bodies in a gzip envelope.
	CompressionGzip

	// CompressionRaw sends bare deflate streams with no envelope.
	CompressionRaw
)

// Transport carries the connection-scoped data a request borrows: it is
// owned by the transport layer and outlives every request on the
// connection. Requests must not retain it past their own lifetime.
type Transport struct {
	// PeerAddr is the remote address of the connection.
	PeerAddr net.Addr

	// Compression is the content encoding negotiated for the connection.
	Compression CompressionMode

	// PeerDN is the distinguished name of the peer's TLS client
	// certificate; empty when client-certificate auth is not in use.
	PeerDN string
}

// IsTLSPeerAuth reports whether the connection authenticated the peer with a
// client certificate.
func (t *Transport) IsTLSPeerAuth() bool {
	return t != nil && t.PeerDN != ""
}
