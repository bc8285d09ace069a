// control/hotreload.go
// Re-reads process configuration on demand and pushes it into a ConfigStore,
// whose listeners apply the tunables that may change at runtime.

package control

import "fmt"

// Reloader reloads Config from its sources into a store.
type Reloader struct {
	store  *ConfigStore
	getenv func(string) string
}

// NewReloader binds a store to an environment lookup (usually os.Getenv).
func NewReloader(store *ConfigStore, getenv func(string) string) *Reloader {
	return &Reloader{store: store, getenv: getenv}
}

// Reload loads and validates the configuration, then publishes it. An invalid
// configuration leaves the store untouched.
func (r *Reloader) Reload() (*Config, error) {
	cfg, err := LoadConfig(r.getenv)
	if err != nil {
		return nil, fmt.Errorf("control: reload: %w", err)
	}
	r.store.SetConfig(cfg.ToMap())
	return cfg, nil
}
