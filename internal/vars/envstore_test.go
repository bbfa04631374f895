package vars

import (
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/reqdeck/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestEnvStoreSaveAndResolve(t *testing.T) {
	t.Parallel()

	envs := NewEnvStore(newTestStore(t))
	if _, err := envs.Save(Environment{
		Name:      "Staging",
		Variables: map[string]string{"baseUrl": "https://staging.example.com"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// lookup is case-insensitive on the environment name
	env, err := envs.Get("staging")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if env.Variables["baseUrl"] != "https://staging.example.com" {
		t.Fatalf("unexpected variables %+v", env.Variables)
	}

	resolver := NewResolver(envs.Provider("staging"))
	got := resolver.Expand("{{baseUrl}}/users")
	if got != "https://staging.example.com/users" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestEnvStoreSetVariableCreates(t *testing.T) {
	t.Parallel()

	envs := NewEnvStore(newTestStore(t))
	if _, err := envs.SetVariable("dev", "token", "abc"); err != nil {
		t.Fatalf("set variable: %v", err)
	}
	if _, err := envs.SetVariable("dev", "host", "localhost"); err != nil {
		t.Fatalf("set variable: %v", err)
	}

	env, err := envs.Get("dev")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if env.Variables["token"] != "abc" || env.Variables["host"] != "localhost" {
		t.Fatalf("unexpected variables %+v", env.Variables)
	}
}

func TestEnvStoreAllAndDelete(t *testing.T) {
	t.Parallel()

	envs := NewEnvStore(newTestStore(t))
	for _, name := range []string{"prod", "dev"} {
		if _, err := envs.Save(Environment{Name: name}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	all, err := envs.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 || all[0].Name != "dev" || all[1].Name != "prod" {
		t.Fatalf("expected sorted environments, got %+v", all)
	}

	if err := envs.Delete("prod"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := envs.Get("prod"); err == nil {
		t.Fatalf("expected missing environment after delete")
	}

	if _, err := envs.Save(Environment{Name: "   "}); err == nil {
		t.Fatalf("blank name should be rejected")
	}
}
