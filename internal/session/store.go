package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the per-account session directory.
const DirPerms = 0o700

// sessionFile is the on-disk JSON envelope for one account's session.
type sessionFile struct {
	Session Session          `json:"session"`
	Cookies []serializedCookie `json:"cookies"`
}

// serializedCookie captures the fields of http.Cookie that matter for
// replay, in a stable JSON shape independent of net/http's internals.
type serializedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
	Secure  bool      `json:"secure"`
}

var unsafeAccountChars = regexp.MustCompile(`[^A-Za-z0-9@._-]`)

// SanitizeAccountName converts an account name (email-like) into a safe
// directory-component name.
func SanitizeAccountName(account string) string {
	return unsafeAccountChars.ReplaceAllString(account, "_")
}

// Store persists Session structs and cookie jars under a per-account
// directory: atomic write-to-temp-then-rename, owner-only permissions.
type Store struct {
	root string // DirPerms-protected root; one subdirectory per account
}

// NewStore creates a Store rooted at dir (see config.SessionDir()).
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) accountDir(account string) string {
	return filepath.Join(s.root, SanitizeAccountName(account))
}

// Delete removes the persisted session directory for account, used by the
// logout command. Missing directory is not an error.
func (s *Store) Delete(account string) error {
	if err := os.RemoveAll(s.accountDir(account)); err != nil {
		return fmt.Errorf("session: removing %s: %w", s.accountDir(account), err)
	}

	return nil
}

func (s *Store) sessionPath(account string) string {
	return filepath.Join(s.accountDir(account), "session.json")
}

// Load reads the session file for account. A missing file, or a parse
// failure, returns a fresh empty Session rather than an error — this
// supports migration from previous on-disk formats, and a corrupt file
// (cookies included) is silently treated as empty rather than fatal.
func (s *Store) Load(account string) (*Session, error) {
	path := s.sessionPath(account)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("session: reading %s: %w", path, err)
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return New(), nil //nolint:nilerr // corrupt session treated as empty, not fatal
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session: creating cookie jar: %w", err)
	}

	byURL := groupCookiesByURL(sf.Cookies)
	for u, cookies := range byURL {
		jar.SetCookies(u, cookies)
	}

	sess := sf.Session
	sess.jar = jar

	return &sess, nil
}

func groupCookiesByURL(cookies []serializedCookie) map[*url.URL][]*http.Cookie {
	byDomain := make(map[string][]*http.Cookie)

	for _, c := range cookies {
		byDomain[c.Domain] = append(byDomain[c.Domain], &http.Cookie{
			Name: c.Name, Value: c.Value, Path: c.Path,
			Domain: c.Domain, Expires: c.Expires, Secure: c.Secure,
		})
	}

	out := make(map[*url.URL][]*http.Cookie, len(byDomain))

	for domain, cookies := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain}
		out[u] = cookies
	}

	return out
}

// Save atomically persists sess (and its cookie jar) for account: write to
// a temp file in the same directory, fsync, then rename. Must be called
// after every Transport response carrying session-relevant headers so a
// crash never loses a freshly issued trust token.
func (s *Store) Save(account string, sess *Session) error {
	dir := s.accountDir(account)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, err)
	}

	snap := sess.Snapshot()

	sf := sessionFile{
		Session: snap,
		Cookies: extractCookies(sess),
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding: %w", err)
	}

	path := s.sessionPath(account)

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: renaming: %w", err)
	}

	success = true

	return nil
}

// extractCookies flattens the jar's cookies for every known webservice host
// plus the auth hosts into the serializable form. net/http/cookiejar does
// not expose enumeration, so callers are expected to have populated the jar
// via SetCookies against known URLs; we re-read via Cookies(u) per host.
func extractCookies(sess *Session) []serializedCookie {
	jar, ok := sess.Jar().(*cookiejar.Jar)
	if !ok || jar == nil {
		return nil
	}

	hosts := map[string]bool{
		"idmsa.apple.com": true,
		"setup.icloud.com": true,
		"www.icloud.com": true,
	}

	for _, u := range sess.Webservices {
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			hosts[parsed.Host] = true
		}
	}

	var out []serializedCookie

	for host := range hosts {
		u := &url.URL{Scheme: "https", Host: host}
		for _, c := range jar.Cookies(u) {
			out = append(out, serializedCookie{
				Name: c.Name, Value: c.Value, Domain: host,
				Path: c.Path, Expires: c.Expires, Secure: c.Secure,
			})
		}
	}

	return out
}
