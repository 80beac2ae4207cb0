// Package auth implements account authentication: it drives Path A
// (token validation), Path B (SRP-6a), and Path C (legacy password)
// login attempts, the MFA and 2SA sub-flows, and produces an
// authenticated session.Session for internal/transport and internal/photos
// to use.
package auth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icloud-photos/icloudpd-go/internal/session"
	"github.com/icloud-photos/icloudpd-go/internal/srp"
	"github.com/icloud-photos/icloudpd-go/internal/statusexchange"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

// Terminal authentication failure modes.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrDomainMismatch     = errors.New("auth: account belongs to a different domain")
	ErrMFAWrongCode       = errors.New("auth: incorrect verification code")
	ErrMFATimeout         = errors.New("auth: timed out waiting for verification code")
)

// CodeSource supplies an MFA/2SA verification code. interactive reads
// stdin; webui and webhook are backed by a shared statusexchange.Exchange
// that an external producer (HTTP handler, bot) feeds.
type CodeSource interface {
	RequestCode(ctx context.Context, trustedPhoneLast4 string) (string, error)
}

// InteractiveCodeSource reads a code from an io.Reader (normally os.Stdin).
type InteractiveCodeSource struct {
	Reader *bufio.Reader
	Prompt func(trustedPhoneLast4 string)
}

func (s *InteractiveCodeSource) RequestCode(ctx context.Context, trustedPhoneLast4 string) (string, error) {
	if s.Prompt != nil {
		s.Prompt(trustedPhoneLast4)
	}

	line, err := s.Reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("auth: reading code from stdin: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// ExchangeCodeSource waits on a statusexchange.Exchange for a code supplied
// by an external producer — a transition waits for an external submitter
// such as an HTTP handler or a bot.
type ExchangeCodeSource struct {
	Exchange *statusexchange.Exchange
	Deadline func() (seconds int)
}

func (s *ExchangeCodeSource) RequestCode(ctx context.Context, trustedPhoneLast4 string) (string, error) {
	if err := s.Exchange.RequestMFA(); err != nil {
		if !errors.Is(err, statusexchange.ErrCASFailed) {
			return "", err
		}

		// A code from a prior attempt leaves the exchange in CheckingMFA;
		// reopen it so a new code can be supplied. A state already in
		// NeedMFA is left as is and waited on.
		_ = s.Exchange.Transition(statusexchange.CheckingMFA, statusexchange.NeedMFA)
	}

	deadline := 0
	if s.Deadline != nil {
		deadline = s.Deadline()
	}

	code, err := s.Exchange.WaitForCode(ctx, time.Duration(deadline)*time.Second)
	if err != nil {
		if errors.Is(err, statusexchange.ErrTimeout) {
			return "", ErrMFATimeout
		}

		return "", err
	}

	return code, nil
}

// Credentials identifies the account and the password source.
type Credentials struct {
	AccountName string
	Password    string
	Domain      string // "com" or "cn"
}

// Authenticator drives the three-path login plus MFA/2SA sub-flows.
type Authenticator struct {
	client     *transport.Client
	sess       *session.Session
	store      *session.Store
	authHost   string
	setupHost  string
	clientID   string
	codeSource CodeSource
	logger     *slog.Logger
}

// New builds an Authenticator bound to one account's session and transport
// client. clientID is generated via google/uuid unless overridden by the
// CLIENT_ID environment variable, which callers resolve before calling
// New.
func New(
	client *transport.Client, sess *session.Session, store *session.Store,
	authHost, setupHost, clientID string, codeSource CodeSource, logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		client: client, sess: sess, store: store,
		authHost: authHost, setupHost: setupHost, clientID: clientID,
		codeSource: codeSource, logger: logger,
	}
}

// GenerateClientID returns a fresh RFC 4122 UUID string, the default
// client identifier THE SERVICE's endpoints expect in the
// X-Apple-OAuth-Client-Id / X-Apple-Client-App-Name-adjacent flows.
func GenerateClientID() string {
	return uuid.NewString()
}

// accountEnvelope is the shape of both the validate and accountLogin
// responses: dsInfo plus webservices plus the MFA-decision fields.
type accountEnvelope struct {
	DSInfo struct {
		HSAVersion            int  `json:"hsaVersion"`
		HSAChallengeRequired  bool `json:"hsaChallengeRequired"`
		HSATrustedBrowser     bool `json:"hsaTrustedBrowser"`
		HasICloudQualifyingDevice bool `json:"hasICloudQualifyingDevice"`
	} `json:"dsInfo"`
	Webservices  map[string]struct {
		URL string `json:"url"`
	} `json:"webservices"`
	DomainToUse    string `json:"domainToUse"`
	RequiresTwoFA  bool   `json:"requires_2fa"`
	AccountCountry string `json:"accountCountry"`
}

func (e *accountEnvelope) requiresMFA() bool {
	return e.DSInfo.HSAVersion == 2 &&
		(e.DSInfo.HSAChallengeRequired || !e.DSInfo.HSATrustedBrowser) &&
		e.DSInfo.HasICloudQualifyingDevice
}

func (e *accountEnvelope) requires2SA() bool {
	return e.DSInfo.HSAVersion == 1 && e.DSInfo.HSAChallengeRequired
}

// Authenticate runs the full login sequence and returns once sess is fully
// populated (webservices resolved), or a terminal error.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) error {
	snap := a.sess.Snapshot()

	if snap.SessionToken != "" {
		_, err := a.validateToken(ctx)
		if err == nil {
			return a.finish(ctx, creds)
		}

		a.logger.Info("stored session token rejected, falling back to full login", slog.String("error", err.Error()))
	}

	_, err := a.loginSRP(ctx, creds)
	if err != nil {
		a.logger.Info("SRP login failed, falling back to legacy password login", slog.String("error", err.Error()))

		_, err = a.loginLegacy(ctx, creds)
		if err != nil {
			return err
		}
	}

	return a.finish(ctx, creds)
}

// finish runs tokenExchange and, if required, the MFA or 2SA sub-flow,
// then re-runs tokenExchange to pick up the freshly issued trust token.
func (a *Authenticator) finish(ctx context.Context, creds Credentials) error {
	env, err := a.tokenExchange(ctx)
	if err != nil {
		return err
	}

	switch {
	case env.requiresMFA():
		if err := a.runMFA(ctx); err != nil {
			return err
		}

		env, err = a.tokenExchange(ctx)
		if err != nil {
			return err
		}
	case env.requires2SA():
		if err := a.run2SA(ctx); err != nil {
			return err
		}

		env, err = a.tokenExchange(ctx)
		if err != nil {
			return err
		}
	}

	ws := make(map[string]string, len(env.Webservices))
	for k, v := range env.Webservices {
		ws[k] = v.URL
	}

	a.sess.SetWebservices(ws)

	return a.store.Save(creds.AccountName, a.sess)
}

func (a *Authenticator) validateToken(ctx context.Context) (*accountEnvelope, error) {
	url := fmt.Sprintf("https://%s/validate", a.setupHost)

	body, _, err := a.client.Do(ctx, transport.Request{Method: http.MethodPost, URL: url})
	if err != nil {
		return nil, err
	}

	var env accountEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("auth: parsing validate response: %w", err)
	}

	return &env, nil
}

// signinInitRequest/signinInitResponse are the SRP-6a init request/response
// bodies.
type signinInitRequest struct {
	A           string   `json:"a"`
	AccountName string   `json:"accountName"`
	Protocols   []string `json:"protocols"`
}

type signinInitResponse struct {
	Salt      string `json:"salt"`
	B         string `json:"b"`
	C         string `json:"c"`
	Iteration int    `json:"iteration"`
	Protocol  string `json:"protocol"`
}

func (a *Authenticator) loginSRP(ctx context.Context, creds Credentials) (*accountEnvelope, error) {
	group := srp.RFC5054Group2048()

	client, err := srp.NewClient(group)
	if err != nil {
		return nil, err
	}

	initReq := signinInitRequest{
		A:           client.PublicValueHex(),
		AccountName: creds.AccountName,
		Protocols:   []string{string(srp.ProtocolS2K), string(srp.ProtocolS2KFO)},
	}

	reqBody, err := json.Marshal(initReq)
	if err != nil {
		return nil, err
	}

	initURL := fmt.Sprintf("https://%s/signin/init", a.authHost)

	body, _, err := a.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: initURL,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonHeaders(),
	})
	if err != nil {
		return nil, err
	}

	var initResp signinInitResponse
	if err := json.Unmarshal(body, &initResp); err != nil {
		return nil, fmt.Errorf("auth: parsing signin/init response: %w", err)
	}

	salt, err := decodeBase64(initResp.Salt)
	if err != nil {
		return nil, err
	}

	if err := client.DeriveKey(srp.Protocol(initResp.Protocol), creds.Password, salt, initResp.Iteration, initResp.B); err != nil {
		return nil, err
	}

	completeReq := struct {
		AccountName      string   `json:"accountName"`
		C                string   `json:"c"`
		M1               string   `json:"m1"`
		M2               string   `json:"m2"`
		RememberMe       bool     `json:"rememberMe"`
		TrustTokens      []string `json:"trustTokens"`
	}{
		AccountName: creds.AccountName,
		C:           initResp.C,
		M1:          encodeBase64(client.M1()),
		M2:          encodeBase64(client.M2()),
		RememberMe:  true,
	}

	snap := a.sess.Snapshot()
	if snap.TrustToken != "" {
		completeReq.TrustTokens = []string{snap.TrustToken}
	}

	completeBody, err := json.Marshal(completeReq)
	if err != nil {
		return nil, err
	}

	completeURL := fmt.Sprintf("https://%s/signin/complete?isRememberMeEnabled=true", a.authHost)

	_, status, err := a.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: completeURL,
		Body:    strings.NewReader(string(completeBody)),
		Headers: jsonHeaders(),
	})

	switch status {
	case http.StatusOK:
		// Password accepted, no 2FA trust required; envelope comes from
		// the subsequent tokenExchange call.
		return &accountEnvelope{}, nil
	case http.StatusConflict:
		return &accountEnvelope{RequiresTwoFA: true}, nil
	case http.StatusPreconditionFailed:
		repairURL := fmt.Sprintf("https://%s/repair/complete", a.authHost)
		if _, _, rerr := a.client.Do(ctx, transport.Request{Method: http.MethodPost, URL: repairURL}); rerr != nil {
			return nil, rerr
		}

		return &accountEnvelope{}, nil
	default:
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}

		return nil, ErrInvalidCredentials
	}
}

func (a *Authenticator) loginLegacy(ctx context.Context, creds Credentials) (*accountEnvelope, error) {
	reqBody, err := json.Marshal(struct {
		AccountName string `json:"accountName"`
		Password    string `json:"password"`
		RememberMe  bool   `json:"rememberMe"`
	}{AccountName: creds.AccountName, Password: creds.Password, RememberMe: true})
	if err != nil {
		return nil, err
	}

	signinURL := fmt.Sprintf("https://%s/signin", a.authHost)

	_, status, err := a.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: signinURL,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonHeaders(),
	})

	switch status {
	case http.StatusOK:
		return &accountEnvelope{}, nil
	case http.StatusConflict:
		return &accountEnvelope{RequiresTwoFA: true}, nil
	default:
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}

		return nil, ErrInvalidCredentials
	}
}

func (a *Authenticator) tokenExchange(ctx context.Context) (*accountEnvelope, error) {
	snap := a.sess.Snapshot()

	reqBody, err := json.Marshal(struct {
		AccountCountry string `json:"accountCountry"`
		DSWebAuthToken string `json:"dsWebAuthToken"`
		ExtendedLogin  bool   `json:"extended_login"`
		TrustToken     string `json:"trustToken,omitempty"`
	}{
		AccountCountry: snap.AccountCountry,
		DSWebAuthToken: snap.SessionToken,
		ExtendedLogin:  true,
		TrustToken:     snap.TrustToken,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s/accountLogin", a.setupHost)

	body, _, err := a.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: url,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonHeaders(),
	})
	if err != nil {
		return nil, err
	}

	var env accountEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("auth: parsing accountLogin response: %w", err)
	}

	if env.DomainToUse != "" {
		return nil, fmt.Errorf("%w: use --domain %s", ErrDomainMismatch, env.DomainToUse)
	}

	return &env, nil
}

func transportGetRequest(url string, headers http.Header) transport.Request {
	return transport.Request{Method: http.MethodGet, URL: url, Headers: headers}
}

func transportGetRequestWithHeaders(method, url string, headers http.Header) transport.Request {
	return transport.Request{Method: method, URL: url, Headers: headers}
}

func transportPostRequest(url, body string, headers http.Header) transport.Request {
	return transport.Request{Method: http.MethodPost, URL: url, Body: strings.NewReader(body), Headers: headers}
}

func jsonHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	return h
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
