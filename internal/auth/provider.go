package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/store"
)

const currentSpecID = "current"

// Provider holds the active auth spec and turns it into headers at
// dispatch time. The spec survives restarts through the store; the
// OAuth2 token cache does not.
type Provider struct {
	mu      sync.Mutex
	spec    restmodel.AuthSpec
	manager *Manager
	store   *store.Store
}

func NewProvider(s *store.Store, manager *Manager) (*Provider, error) {
	if manager == nil {
		manager = NewManager(nil)
	}
	p := &Provider{
		spec:    restmodel.AuthSpec{Type: restmodel.AuthNone},
		manager: manager,
		store:   s,
	}
	if s != nil {
		obj, err := s.Get(store.BucketAuth, currentSpecID)
		if err == nil {
			var spec restmodel.AuthSpec
			if err := json.Unmarshal(obj.Data, &spec); err != nil {
				return nil, errdef.Wrap(errdef.CodeStorage, err, "decode saved auth")
			}
			p.spec = spec
		}
	}
	return p, nil
}

func (p *Provider) Set(spec restmodel.AuthSpec) error {
	p.mu.Lock()
	p.spec = spec
	p.mu.Unlock()
	return p.persist(spec)
}

func (p *Provider) Get() restmodel.AuthSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

func (p *Provider) Clear() error {
	spec := restmodel.AuthSpec{Type: restmodel.AuthNone}
	p.mu.Lock()
	p.spec = spec
	p.mu.Unlock()
	p.manager.InvalidateAll()
	return p.persist(spec)
}

func (p *Provider) persist(spec restmodel.AuthSpec) error {
	if p.store == nil {
		return nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode auth")
	}
	return p.store.Put(store.BucketAuth, currentSpecID, data, "")
}

// Apply overlays auth headers onto the built header map. The overlay
// runs after explicit headers and wins over them, so a stale
// Authorization entry the user typed is replaced by the configured
// auth.
func (p *Provider) Apply(ctx context.Context, spec restmodel.AuthSpec, headers map[string]string) error {
	switch spec.Type {
	case "", restmodel.AuthNone:
		return nil
	case restmodel.AuthBasic:
		credentials := spec.Param("username") + ":" + spec.Param("password")
		setHeader(headers, "Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
		return nil
	case restmodel.AuthBearer:
		token := strings.TrimSpace(spec.Param("token"))
		if token == "" {
			return errdef.New(errdef.CodeValidation, "bearer auth requires a token")
		}
		setHeader(headers, "Authorization", "Bearer "+token)
		return nil
	case restmodel.AuthAPIKey:
		name := strings.TrimSpace(spec.Param("key"))
		if name == "" {
			return errdef.New(errdef.CodeValidation, "api key auth requires a header name")
		}
		setHeader(headers, name, spec.Param("value"))
		return nil
	case restmodel.AuthOAuth2:
		token, err := p.manager.Token(ctx, oauthConfigFrom(spec))
		if err != nil {
			return err
		}
		tokenType := token.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		setHeader(headers, "Authorization", tokenType+" "+token.AccessToken)
		return nil
	default:
		return errdef.New(errdef.CodeValidation, "unsupported auth type %q", spec.Type)
	}
}

func oauthConfigFrom(spec restmodel.AuthSpec) OAuthConfig {
	return OAuthConfig{
		TokenURL:     spec.Param("tokenUrl"),
		RedirectURL:  spec.Param("redirectUrl"),
		ClientID:     spec.Param("clientId"),
		ClientSecret: spec.Param("clientSecret"),
		Scope:        spec.Param("scope"),
		Audience:     spec.Param("audience"),
		Username:     spec.Param("username"),
		Password:     spec.Param("password"),
		ClientAuth:   spec.Param("clientAuth"),
		GrantType:    spec.Param("grantType"),
		CacheKey:     spec.Param("cacheKey"),
		Code:         spec.Param("code"),
		CodeVerifier: spec.Param("codeVerifier"),
	}
}

// setHeader replaces any case-variant of name before setting it, so
// the overlay never leaves two spellings of the same header behind.
func setHeader(headers map[string]string, name, value string) {
	for key := range headers {
		if strings.EqualFold(key, name) {
			delete(headers, key)
		}
	}
	headers[name] = value
}
