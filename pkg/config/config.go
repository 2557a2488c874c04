// pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// NetlasAPIKeyEnv is read when no API key is configured under the FWID_ prefix.
const NetlasAPIKeyEnv = "NETLAS_API_KEY"

// Global Koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once

	validate = validator.New()
)

// InitGlobalConfig initializes the global Koanf instance.
// This should be called early in the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a new Manager backed by the global Koanf instance.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
	}
}

// DefaultConfig returns a new Config struct populated with hardcoded default values.
// These serve as the baseline configuration if no other sources override them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scan: ScanConfig{
			Concurrency: 4,
		},
		Provider: ProviderConfig{
			Netlas: NetlasConfig{
				BaseURL:   "https://app.netlas.io/api",
				Timeout:   30 * time.Second,
				RateLimit: 1,
				Burst:     1,
			},
		},
	}
}

// Load loads configuration from defaults, the optional config file,
// FWID_* environment variables and flags, in that order of precedence.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(customConfigFilePath, flags, debug))
}

// LoadWithSources loads sources in ascending priority and validates the
// merged result.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := make([]ConfigSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	for _, src := range ordered {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	postProcessConfig(&newCfg)

	if err := Validate(newCfg); err != nil {
		return err
	}
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Validate checks cfg against its field constraints.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// postProcessConfig fills values that have a fallback outside koanf.
func postProcessConfig(cfg *Config) {
	if cfg.Provider.Netlas.APIKey == "" {
		cfg.Provider.Netlas.APIKey = os.Getenv(NetlasAPIKeyEnv)
	}
}

// DefaultConfigAsMap converts the DefaultConfig struct to a map[string]interface{}
// for Koanf's confmap.Provider. Its keys are also the set of known keys used
// to map environment variables.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		// Scan configuration
		"scan.concurrency": def.Scan.Concurrency,

		// Netlas provider
		"provider.netlas.api_key":    def.Provider.Netlas.APIKey,
		"provider.netlas.base_url":   def.Provider.Netlas.BaseURL,
		"provider.netlas.timeout":    def.Provider.Netlas.Timeout,
		"provider.netlas.rate_limit": def.Provider.Netlas.RateLimit,
		"provider.netlas.burst":      def.Provider.Netlas.Burst,
	}
}

// BindFlags defines command-line flags corresponding to configuration settings.
// This function should be called when setting up Cobra commands.
func BindFlags(flags *pflag.FlagSet) {
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")

	// Note: The main --config / -c flag for specifying the config file path
	// is typically defined directly on the root Cobra command's PersistentFlags.
}
