package vars

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Provider interface {
	Resolve(name string) (string, bool)
	Label() string
}

type Resolver struct {
	providers []Provider
}

func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// First tries direct lookup across all providers.
// If that fails and the name has a dot, tries to match a provider prefix -
// so "production.api_key" looks for a provider labeled "production" then asks for "api_key".
func (r *Resolver) Resolve(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	for _, provider := range r.providers {
		if value, ok := provider.Resolve(trimmed); ok {
			return value, true
		}
	}
	if !strings.Contains(trimmed, ".") {
		return "", false
	}
	lowered := strings.ToLower(trimmed)
	for _, provider := range r.providers {
		label := strings.TrimSpace(strings.ToLower(provider.Label()))
		if label == "" {
			continue
		}
		if strings.HasPrefix(lowered, label+".") {
			subject := strings.TrimSpace(trimmed[len(label)+1:])
			if subject == "" {
				continue
			}
			if value, ok := provider.Resolve(subject); ok {
				return value, true
			}
		}
	}
	return "", false
}

var templateVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Expand replaces every {{name}} occurrence that resolves. Names that
// no provider knows stay as literal text so a half-configured
// environment never corrupts the request.
func (r *Resolver) Expand(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return templateVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := templateVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		name := strings.TrimSpace(sub[1])
		if name == "" {
			return match
		}
		if strings.HasPrefix(name, "$") {
			if value, ok := r.Resolve(name); ok {
				return value
			}
			if dynamic, ok := resolveDynamic(name); ok {
				return dynamic
			}
		}
		if value, ok := r.Resolve(name); ok {
			return value
		}
		return match
	})
}

// Unresolved reports the placeholder names Expand would leave literal.
func (r *Resolver) Unresolved(input string) []string {
	var missing []string
	for _, sub := range templateVarPattern.FindAllStringSubmatch(input, -1) {
		name := strings.TrimSpace(sub[1])
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, "$") {
			if _, ok := resolveDynamic(name); ok {
				continue
			}
		}
		if _, ok := r.Resolve(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func resolveDynamic(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "$timestamp":
		return fmt.Sprintf("%d", time.Now().Unix()), true
	case "$timestampiso8601", "$isotimestamp":
		return time.Now().UTC().Format(time.RFC3339), true
	case "$randomint":
		n, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
		return n.String(), true
	case "$uuid", "$guid":
		return uuid.NewString(), true
	default:
		return "", false
	}
}

type MapProvider struct {
	values map[string]string
	label  string
}

// Keys get lowercased so lookups are case-insensitive
func NewMapProvider(label string, values map[string]string) Provider {
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		normalized[strings.ToLower(k)] = v
	}
	return &MapProvider{values: normalized, label: label}
}

func (p *MapProvider) Resolve(name string) (string, bool) {
	value, ok := p.values[strings.ToLower(name)]
	return value, ok
}

func (p *MapProvider) Label() string {
	return p.label
}

type EnvProvider struct{}

func (EnvProvider) Resolve(name string) (string, bool) {
	if value, ok := os.LookupEnv(name); ok {
		return value, true
	}
	return os.LookupEnv(strings.ToUpper(name))
}

func (EnvProvider) Label() string {
	return "env"
}
