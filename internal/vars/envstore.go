package vars

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/store"
)

// EnvStore persists named environments in the durable store, keyed by
// their lowercased name so lookups match resolver semantics.
type EnvStore struct {
	store *store.Store
}

func NewEnvStore(s *store.Store) *EnvStore {
	return &EnvStore{store: s}
}

func (e *EnvStore) Save(env Environment) (Environment, error) {
	env.Name = strings.TrimSpace(env.Name)
	if env.Name == "" {
		return Environment{}, errdef.New(errdef.CodeValidation, "environment name is required")
	}
	if env.Variables == nil {
		env.Variables = map[string]string{}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return Environment{}, errdef.Wrap(errdef.CodeStorage, err, "encode environment %q", env.Name)
	}
	id := envID(env.Name)
	if err := e.store.Put(store.BucketEnvironments, id, data, ""); err != nil {
		return Environment{}, err
	}
	env.ID = id
	return env, nil
}

func (e *EnvStore) Get(name string) (Environment, error) {
	obj, err := e.store.Get(store.BucketEnvironments, envID(name))
	if err != nil {
		return Environment{}, err
	}
	return decodeEnvironment(obj)
}

func (e *EnvStore) Delete(name string) error {
	return e.store.Delete(store.BucketEnvironments, envID(name))
}

func (e *EnvStore) All() ([]Environment, error) {
	objects, err := e.store.All(store.BucketEnvironments)
	if err != nil {
		return nil, err
	}
	envs := make([]Environment, 0, len(objects))
	for _, obj := range objects {
		env, err := decodeEnvironment(obj)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	return envs, nil
}

// SetVariable updates one variable, creating the environment if it
// does not exist yet.
func (e *EnvStore) SetVariable(name, key, value string) (Environment, error) {
	if strings.TrimSpace(key) == "" {
		return Environment{}, errdef.New(errdef.CodeValidation, "variable key is required")
	}
	env, err := e.Get(name)
	if err != nil {
		env = Environment{Name: strings.TrimSpace(name), Variables: map[string]string{}}
	}
	env.Variables[key] = value
	return e.Save(env)
}

// Provider resolves against a stored environment; unknown names yield
// an empty provider.
func (e *EnvStore) Provider(name string) Provider {
	env, err := e.Get(name)
	if err != nil {
		return NewMapProvider(name, nil)
	}
	return NewMapProvider(env.Name, env.Variables)
}

func decodeEnvironment(obj store.Object) (Environment, error) {
	var env Environment
	if err := json.Unmarshal(obj.Data, &env); err != nil {
		return Environment{}, errdef.Wrap(errdef.CodeStorage, err, "decode environment %s", obj.ID)
	}
	env.ID = obj.ID
	return env, nil
}

func envID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
