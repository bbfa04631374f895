package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
)

// OAuthConfig carries everything a token endpoint call may need.
// Only TokenURL and the grant's own fields are mandatory.
type OAuthConfig struct {
	TokenURL     string
	RedirectURL  string
	ClientID     string
	ClientSecret string
	Scope        string
	Audience     string
	Username     string
	Password     string
	ClientAuth   string
	GrantType    string
	CacheKey     string
	Code         string
	CodeVerifier string
	Extra        map[string]string
}

type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Expiry       time.Time
	Raw          map[string]any
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Manager struct {
	client Doer

	mu       sync.Mutex
	cache    map[string]*cacheEntry
	inflight map[string]*call
}

type cacheEntry struct {
	token Token
	cfg   OAuthConfig
}

type call struct {
	done  chan struct{}
	token Token
	err   error
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    json.Number `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
}

const expirySlack = 30 * time.Second

func NewManager(client Doer) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		client:   client,
		cache:    make(map[string]*cacheEntry),
		inflight: make(map[string]*call),
	}
}

// Deduplicates concurrent token requests for the same config.
// If another goroutine is already fetching, we wait on their done channel
// instead of hitting the auth server twice.
func (m *Manager) Token(ctx context.Context, cfg OAuthConfig) (Token, error) {
	key := m.cacheKeyFor(cfg)

	if token, ok := m.cachedToken(key); ok && token.valid() {
		return token, nil
	}

	m.mu.Lock()
	if call, ok := m.inflight[key]; ok {
		done := call.done
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-done:
			if call.err != nil {
				return Token{}, call.err
			}
			return call.token, nil
		}
	}
	call := &call{done: make(chan struct{})}
	m.inflight[key] = call
	m.mu.Unlock()

	token, err := m.obtainToken(ctx, key, cfg)
	call.token = token
	call.err = err
	close(call.done)

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()

	if err != nil {
		return Token{}, err
	}
	return token, nil
}

func (m *Manager) obtainToken(ctx context.Context, key string, cfg OAuthConfig) (Token, error) {
	if token, ok := m.cachedToken(key); ok && token.valid() {
		return token, nil
	}

	entry := m.cacheEntry(key)
	if entry != nil && entry.token.RefreshToken != "" {
		if refreshed, err := m.refreshToken(ctx, entry.cfg, entry.token.RefreshToken); err == nil {
			m.storeToken(key, cfg, refreshed)
			return refreshed, nil
		}
	}

	fetched, err := m.requestToken(ctx, cfg)
	if err != nil {
		return Token{}, err
	}

	m.storeToken(key, cfg, fetched)
	return fetched, nil
}

// InvalidateAll drops every cached token, forcing fresh fetches.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*cacheEntry)
}

func (m *Manager) cachedToken(key string) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[key]
	if !ok {
		return Token{}, false
	}
	return entry.token, true
}

func (m *Manager) cacheEntry(key string) *cacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache[key]
}

func (m *Manager) storeToken(key string, cfg OAuthConfig, token Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = &cacheEntry{token: token, cfg: cfg}
}

func (m *Manager) cacheKeyFor(cfg OAuthConfig) string {
	if strings.TrimSpace(cfg.CacheKey) != "" {
		return strings.TrimSpace(cfg.CacheKey)
	}

	parts := []string{
		strings.TrimSpace(cfg.TokenURL),
		strings.TrimSpace(cfg.RedirectURL),
		strings.TrimSpace(cfg.ClientID),
		strings.TrimSpace(cfg.Scope),
		strings.TrimSpace(cfg.Audience),
		strings.ToLower(strings.TrimSpace(cfg.GrantType)),
		strings.TrimSpace(cfg.Username),
		strings.ToLower(strings.TrimSpace(cfg.ClientAuth)),
	}
	if len(cfg.Extra) > 0 {
		keys := make([]string, 0, len(cfg.Extra))
		for k := range cfg.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+cfg.Extra[k])
		}
	}
	return strings.Join(parts, "|")
}

func (m *Manager) requestToken(ctx context.Context, cfg OAuthConfig) (Token, error) {
	grant := strings.ToLower(strings.TrimSpace(cfg.GrantType))
	if grant == "" {
		grant = "client_credentials"
	}

	form := url.Values{}
	form.Set("grant_type", grant)
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}
	if cfg.Audience != "" {
		form.Set("audience", cfg.Audience)
	}
	for k, v := range cfg.Extra {
		if k != "" && v != "" {
			form.Set(k, v)
		}
	}

	authMode := resolveClientAuth(grant, strings.TrimSpace(cfg.ClientAuth), cfg)

	switch grant {
	case "client_credentials":
		if authMode.useBody {
			form.Set("client_id", cfg.ClientID)
			form.Set("client_secret", cfg.ClientSecret)
		}
	case "password":
		form.Set("username", cfg.Username)
		form.Set("password", cfg.Password)
		if authMode.useBody {
			form.Set("client_id", cfg.ClientID)
			form.Set("client_secret", cfg.ClientSecret)
		}
	case "authorization_code":
		if cfg.Code == "" {
			return Token{}, errdef.New(errdef.CodeHTTP, "missing authorization code")
		}
		if strings.TrimSpace(cfg.RedirectURL) == "" {
			return Token{}, errdef.New(errdef.CodeHTTP, "authorization_code requires redirect_uri")
		}
		form.Set("code", cfg.Code)
		form.Set("redirect_uri", cfg.RedirectURL)
		if cfg.CodeVerifier != "" {
			form.Set("code_verifier", cfg.CodeVerifier)
		}
		if authMode.useBody || cfg.ClientSecret == "" {
			if cfg.ClientID != "" {
				form.Set("client_id", cfg.ClientID)
			}
			if cfg.ClientSecret != "" && authMode.useBody {
				form.Set("client_secret", cfg.ClientSecret)
			}
		}
	default:
		return Token{}, errdef.New(errdef.CodeHTTP, "unsupported oauth2 grant type: %s", grant)
	}

	var header http.Header
	if authMode.useHeader && cfg.ClientID != "" {
		credentials := cfg.ClientID + ":" + cfg.ClientSecret
		header = http.Header{}
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	}

	return m.postTokenForm(ctx, cfg.TokenURL, form, header, "oauth token request failed")
}

type clientAuthMode struct {
	useHeader bool
	useBody   bool
}

func resolveClientAuth(grant, clientAuthRaw string, cfg OAuthConfig) clientAuthMode {
	mode := strings.ToLower(clientAuthRaw)
	if mode == "" {
		mode = "basic"
	}

	useHeader := mode == "basic"
	if useHeader && cfg.ClientSecret == "" &&
		(clientAuthRaw == "" || grant == "authorization_code") {
		useHeader = false
		mode = "body"
	}

	return clientAuthMode{
		useHeader: useHeader,
		useBody:   mode == "body",
	}
}

func (m *Manager) refreshToken(ctx context.Context, cfg OAuthConfig, refresh string) (Token, error) {
	if refresh == "" {
		return Token{}, errdef.New(errdef.CodeHTTP, "missing refresh token")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}
	for k, v := range cfg.Extra {
		if k != "" && v != "" {
			form.Set(k, v)
		}
	}

	var header http.Header
	if strings.ToLower(strings.TrimSpace(cfg.ClientAuth)) == "basic" && cfg.ClientID != "" {
		credentials := cfg.ClientID + ":" + cfg.ClientSecret
		header = http.Header{}
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	} else {
		form.Set("client_id", cfg.ClientID)
		form.Set("client_secret", cfg.ClientSecret)
	}

	return m.postTokenForm(ctx, cfg.TokenURL, form, header, "oauth token refresh failed")
}

func (m *Manager) postTokenForm(
	ctx context.Context,
	tokenURL string,
	form url.Values,
	header http.Header,
	failMsg string,
) (Token, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return Token{}, errdef.New(errdef.CodeHTTP, "missing token url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, errdef.Wrap(errdef.CodeHTTP, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Token{}, errdef.Wrap(errdef.CodeHTTP, err, "call token endpoint")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, errdef.Wrap(errdef.CodeHTTP, err, "read token response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, errdef.New(errdef.CodeHTTP, "%s: %s", failMsg, resp.Status)
	}
	return parseTokenResponse(body)
}

func parseTokenResponse(body []byte) (Token, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// this covers that some legacy providers can return application/x-www-form-urlencoded
		// unless an explicit Accept: application/json is sent. Fall back to decoding
		// the form-encoded body so these responses still work.
		values, parseErr := url.ParseQuery(string(body))
		if parseErr != nil {
			return Token{}, errdef.Wrap(errdef.CodeHTTP, err, "decode oauth token response")
		}
		resp.AccessToken = values.Get("access_token")
		resp.TokenType = values.Get("token_type")
		resp.RefreshToken = values.Get("refresh_token")
		if expires := values.Get("expires_in"); expires != "" {
			resp.ExpiresIn = json.Number(expires)
		}
		return buildToken(resp, buildRawMap(values))
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		return buildToken(resp, raw)
	}
	return buildToken(resp, nil)
}

func buildToken(resp tokenResponse, raw map[string]any) (Token, error) {
	if resp.AccessToken == "" {
		return Token{}, errdef.New(errdef.CodeHTTP, "oauth token response missing access_token")
	}
	if resp.TokenType == "" {
		resp.TokenType = "Bearer"
	}

	expiry := time.Time{}
	if resp.ExpiresIn != "" {
		if seconds, err := resp.ExpiresIn.Int64(); err == nil && seconds > 0 {
			expiry = time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}

	return Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
		Expiry:       expiry,
		Raw:          raw,
	}, nil
}

func buildRawMap(values url.Values) map[string]any {
	if len(values) == 0 {
		return nil
	}
	raw := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			raw[k] = v[0]
			continue
		}
		raw[k] = v
	}
	return raw
}

// Treats tokens expiring in the next 30 seconds as already expired
// to avoid racing with the actual expiration.
func (t Token) valid() bool {
	if t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(expirySlack).Before(t.Expiry)
}
