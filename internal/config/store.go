package config

// StoreConfig configures the SQLite story graph store.
type StoreConfig struct {
	// DatabasePath overrides the default <state_dir>/story.db location.
	DatabasePath string `yaml:"database_path"`

	// BusyTimeoutMS is the SQLite busy timeout applied at open.
	BusyTimeoutMS int `yaml:"busy_timeout_ms"`
}

// DefaultStoreConfig returns the built-in store settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BusyTimeoutMS: 5000,
	}
}
