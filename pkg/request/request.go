// Package request builds the application-visible view of one HTTP request:
// decoded parameters and cookies, the auth identity, the borrowed transport
// context, and the binding to a server session.
package request

import (
	"errors"

	"github.com/serviohq/servio/pkg/multipart"
	"github.com/serviohq/servio/pkg/observability"
	"github.com/serviohq/servio/pkg/session"
	"github.com/serviohq/servio/pkg/urlenc"
)

// ErrNoSessionStore is returned by session operations when the request was
// constructed without a session store.
var ErrNoSessionStore = errors.New("request: no session store")

// Method is the HTTP method of a request.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
)

// String returns the wire spelling of the method.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// SessionCookie is the cookie that binds a request to a server session.
const SessionCookie = "SID"

// FieldSource is implemented by the multipart boundary parser. It exposes
// the decoded fields of a multipart body.
type FieldSource interface {
	// Field returns the named field, or false if the body has no such part.
	Field(name string) (*multipart.Field, bool)

	// FieldNames lists the names of all parts.
	FieldNames() []string
}

// Request is the decoded view of one incoming request. It is created when
// the header section has been parsed, owned by the connection's worker, and
// must not outlive the Transport it borrows.
type Request struct {
	method       Method
	url          string
	origin       string
	authUsername string
	transport    *Transport
	params       map[string]string
	cookies      map[string]string
	sessionID    string
	jsonPayload  string
	mp           FieldSource
	sessions     session.Store
}

// New constructs a request from the raw header-derived strings. rawParams is
// percent-decoded and split into the parameter map; rawCookies is split (but
// not decoded) into the cookie map. If the SID cookie names a session the
// store knows, the request is bound to it; otherwise it stays unbound until
// CreateSession.
//
// A malformed percent escape in rawParams fails construction with
// urlenc.ErrMalformedEncoding; no partially decoded request is returned.
func New(method Method, url, rawParams, rawCookies, origin, authUsername string,
	transport *Transport, jsonPayload string, mp FieldSource, sessions session.Store) (*Request, error) {

	params, err := urlenc.ParseParameters(rawParams)
	if err != nil {
		return nil, err
	}

	r := &Request{
		method:       method,
		url:          url,
		origin:       origin,
		authUsername: authUsername,
		transport:    transport,
		params:       params,
		cookies:      urlenc.ParseCookies(rawCookies),
		jsonPayload:  jsonPayload,
		mp:           mp,
		sessions:     sessions,
	}

	if id := r.cookies[SessionCookie]; id != "" && sessions != nil && sessions.Find(id) {
		r.sessionID = id
	}

	observability.Get().RequestsTotal.WithLabelValues(method.String()).Inc()
	return r, nil
}

// Method returns the HTTP method.
func (r *Request) Method() Method { return r.method }

// URL returns the requested URL.
func (r *Request) URL() string { return r.url }

// Origin returns the Origin header value.
func (r *Request) Origin() string { return r.origin }

// AuthUsername returns the authenticated username, or "" if none.
func (r *Request) AuthUsername() string { return r.authUsername }

// Transport returns the borrowed connection context.
func (r *Request) Transport() *Transport { return r.transport }

// CompressionMode returns the encoding negotiated for the connection.
func (r *Request) CompressionMode() CompressionMode {
	if r.transport == nil {
		return CompressionNone
	}
	return r.transport.Compression
}

// JSONPayload returns the raw JSON body, or "" if none.
func (r *Request) JSONPayload() string { return r.jsonPayload }

// IsMultipart reports whether the request carries a multipart body.
func (r *Request) IsMultipart() bool { return r.mp != nil }

// Multipart returns the multipart field source, or nil.
func (r *Request) Multipart() FieldSource { return r.mp }

// Parameter returns a decoded query/form parameter.
func (r *Request) Parameter(name string) (string, bool) {
	v, ok := r.params[name]
	return v, ok
}

// HasParameter reports whether the named parameter is present.
func (r *Request) HasParameter(name string) bool {
	_, ok := r.params[name]
	return ok
}

// ParameterNames lists the names of all decoded parameters.
func (r *Request) ParameterNames() []string {
	names := make([]string, 0, len(r.params))
	for name := range r.params {
		names = append(names, name)
	}
	return names
}

// Cookie returns a cookie value, undecoded.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

// CookieNames lists the names of all cookies.
func (r *Request) CookieNames() []string {
	names := make([]string, 0, len(r.cookies))
	for name := range r.cookies {
		names = append(names, name)
	}
	return names
}

// SessionID returns the bound session ID, or "" when unbound.
func (r *Request) SessionID() string { return r.sessionID }

// IsSessionValid reports whether the request is bound to a live session.
func (r *Request) IsSessionValid() bool { return r.sessionID != "" }

// CreateSession allocates a new session and binds the request to it.
func (r *Request) CreateSession() (string, error) {
	if r.sessions == nil {
		return "", ErrNoSessionStore
	}
	id, err := r.sessions.Create()
	if err != nil {
		return "", err
	}
	r.sessionID = id
	return id, nil
}

// RemoveSession deletes the bound session, if any, and unbinds the request.
func (r *Request) RemoveSession() {
	if r.sessionID == "" || r.sessions == nil {
		return
	}
	_ = r.sessions.Remove(r.sessionID)
	r.sessionID = ""
}

// SetSessionAttribute stores an attribute on the bound session, creating a
// session on demand.
func (r *Request) SetSessionAttribute(name string, value any) error {
	if r.sessions == nil {
		return ErrNoSessionStore
	}
	if r.sessionID == "" {
		if _, err := r.CreateSession(); err != nil {
			return err
		}
	}
	return r.sessions.SetAttribute(r.sessionID, name, value)
}

// SessionAttribute returns an attribute of the bound session, or false when
// the request is unbound or the attribute is absent.
func (r *Request) SessionAttribute(name string) (any, bool) {
	if r.sessionID == "" || r.sessions == nil {
		return nil, false
	}
	return r.sessions.GetAttribute(r.sessionID, name)
}

// SessionAttributeNames lists the attribute names of the bound session.
func (r *Request) SessionAttributeNames() []string {
	if r.sessionID == "" || r.sessions == nil {
		return nil
	}
	return r.sessions.AttributeNames(r.sessionID)
}

// RemoveSessionAttribute deletes an attribute of the bound session.
func (r *Request) RemoveSessionAttribute(name string) {
	if r.sessionID == "" || r.sessions == nil {
		return
	}
	_ = r.sessions.RemoveAttribute(r.sessionID, name)
}
