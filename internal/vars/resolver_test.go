package vars

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

func TestExpandResolvesAcrossProviders(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(
		NewMapProvider("request", map[string]string{"token": "abc"}),
		NewMapProvider("globals", map[string]string{"Host": "api.example.com"}),
	)

	got := resolver.Expand("https://{{host}}/v1?auth={{token}}")
	if got != "https://api.example.com/v1?auth=abc" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestExpandLeavesUnknownLiteral(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("req", nil))
	input := "https://example.com/{{missing}}/x"
	if got := resolver.Expand(input); got != input {
		t.Fatalf("expected literal passthrough, got %q", got)
	}
	missing := resolver.Unresolved(input)
	if len(missing) != 1 || missing[0] != "missing" {
		t.Fatalf("unexpected unresolved list %v", missing)
	}
}

func TestExpandProviderPrefix(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("staging", map[string]string{"base": "https://stage.local"}))
	if got := resolver.Expand("{{staging.base}}/health"); got != "https://stage.local/health" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestExpandDynamicUUID(t *testing.T) {
	t.Parallel()

	resolver := NewResolver()
	got := resolver.Expand("{{$uuid}}")
	if strings.Contains(got, "{{") || len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestExpandRequestDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewMapProvider("env", map[string]string{"base": "https://api.local", "key": "k1"}))
	req := restmodel.NewRequest()
	req.URL = "{{base}}/users"
	req.Params = []restmodel.Row{{Enabled: true, Key: "api_key", Value: "{{key}}"}}
	req.Auth = restmodel.AuthSpec{Type: restmodel.AuthBearer, Data: map[string]string{"token": "{{key}}"}}

	out := resolver.ExpandRequest(req)
	if out.URL != "https://api.local/users" {
		t.Fatalf("unexpected url %q", out.URL)
	}
	if out.Params[0].Value != "k1" || out.Auth.Data["token"] != "k1" {
		t.Fatalf("rows or auth not expanded: %+v %+v", out.Params, out.Auth)
	}
	if req.URL != "{{base}}/users" || req.Auth.Data["token"] != "{{key}}" {
		t.Fatalf("input request was mutated")
	}
}

func TestLoadEnvironmentFileShapes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	nested := filepath.Join(dir, "envs.yaml")
	if err := os.WriteFile(nested, []byte("staging:\n  base: https://stage.local\nprod:\n  base: https://api.local\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	set, err := LoadEnvironmentFile(nested)
	if err != nil {
		t.Fatalf("load nested: %v", err)
	}
	if len(set) != 2 || set["prod"]["base"] != "https://api.local" {
		t.Fatalf("unexpected set %v", set)
	}
	if names := set.Names(); names[0] != "prod" || names[1] != "staging" {
		t.Fatalf("unexpected names order %v", names)
	}

	flat := filepath.Join(dir, "local.json")
	if err := os.WriteFile(flat, []byte(`{"base": "http://127.0.0.1:8080"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	set, err = LoadEnvironmentFile(flat)
	if err != nil {
		t.Fatalf("load flat: %v", err)
	}
	if set["local"]["base"] != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected flat set %v", set)
	}
}
