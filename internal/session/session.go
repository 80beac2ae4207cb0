// Package session implements the SessionStore: persistence of the mutable
// authentication Session (cookie jar plus session headers) to disk, keyed
// by account name. This is the leaf package imported by internal/transport
// and internal/auth to avoid a transport<->auth import cycle.
package session

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
)

// Session is the mutable, persisted authentication state. clientId is
// stable across the lifetime of a cookie jar file.
type Session struct {
	mu sync.RWMutex

	AccountCountry string `json:"account_country"`
	SessionID      string `json:"session_id"`
	SessionToken   string `json:"session_token"`
	TrustToken     string `json:"trust_token"`
	TrustEligible  bool   `json:"trust_eligible"`
	Scnt           string `json:"scnt"`
	ClientID       string `json:"client_id"`

	// Webservices maps a service key (ckdatabasews, findme, account, ...)
	// to its base URL, populated by the final accountLogin response.
	Webservices map[string]string `json:"webservices,omitempty"`

	jar *cookiejar.Jar
}

// New returns an empty Session with a fresh in-memory cookie jar.
func New() *Session {
	jar, _ := cookiejar.New(nil)

	return &Session{Webservices: make(map[string]string), jar: jar}
}

// Jar returns the cookie jar for use as an http.Client CookieJar.
func (s *Session) Jar() http.CookieJar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.jar
}

// Snapshot returns a copy of the header-derived fields, safe to read
// without holding the session's lock across an I/O call.
func (s *Session) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws := make(map[string]string, len(s.Webservices))
	for k, v := range s.Webservices {
		ws[k] = v
	}

	return Session{
		AccountCountry: s.AccountCountry,
		SessionID:      s.SessionID,
		SessionToken:   s.SessionToken,
		TrustToken:     s.TrustToken,
		TrustEligible:  s.TrustEligible,
		Scnt:           s.Scnt,
		ClientID:       s.ClientID,
		Webservices:    ws,
	}
}

// trackedHeaders maps a response header name to the Session field it
// updates.
var trackedHeaders = map[string]func(*Session, string){
	"X-Apple-ID-Session-Id": func(s *Session, v string) { s.SessionID = v },
	"X-Apple-Session-Token": func(s *Session, v string) { s.SessionToken = v },
	"X-Apple-Twosv-Trust-Token": func(s *Session, v string) { s.TrustToken = v },
	"Scnt":                      func(s *Session, v string) { s.Scnt = v },
}

// ApplyHeaders updates the Session from any tracked header present in resp,
// returning true if anything changed (the caller must then persist via
// SessionStore.Save before returning control to its own caller: SessionStore
// writes must stay serialized with Transport responses).
func (s *Session) ApplyHeaders(h http.Header) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false

	for name, apply := range trackedHeaders {
		if v := h.Get(name); v != "" {
			apply(s, v)
			changed = true
		}
	}

	return changed
}

// SetWebservices replaces the webservices map atomically.
func (s *Session) SetWebservices(ws map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Webservices = ws
}

// ServiceURL resolves a service key through the webservices map.
func (s *Session) ServiceURL(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.Webservices[key]

	return v, ok
}
