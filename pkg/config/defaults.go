package config

import (
	"strings"
	"time"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// DefaultPlanID is the plan users fall back to when the configuration
// carries no explicit assignment for them.
const DefaultPlanID = "free"

// defaultFreePlanLimit is the free plan's byte budget (10 GiB).
const defaultFreePlanLimit = 10 << 30

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetadataDefaults(&cfg.Metadata)
	applyObjectStoreDefaults(&cfg.ObjectStore)
	applyPlansDefaults(&cfg.Plans)
	applyAccessCodesDefaults(&cfg.AccessCodes)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetadataDefaults sets metadata store defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "/var/lib/cubby/metadata"
	}
}

// applyObjectStoreDefaults sets object store defaults.
func applyObjectStoreDefaults(cfg *ObjectStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// applyPlansDefaults seeds the free plan when no plans are configured.
func applyPlansDefaults(cfg *PlansConfig) {
	if cfg.Default == "" {
		cfg.Default = DefaultPlanID
	}
	if cfg.Definitions == nil {
		cfg.Definitions = make(map[string]PlanDefinition)
	}
	if _, ok := cfg.Definitions[cfg.Default]; !ok {
		cfg.Definitions[cfg.Default] = PlanDefinition{StorageLimit: defaultFreePlanLimit}
	}
}

// applyAccessCodesDefaults sets sharing code defaults.
func applyAccessCodesDefaults(cfg *AccessCodesConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = vfs.DefaultAccessCodeTTL
	}
}

// GetDefaultConfig returns a complete configuration with all defaults
// applied. Useful for generating sample configuration files and testing.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
