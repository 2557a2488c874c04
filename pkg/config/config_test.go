package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to reset global variables for testing
func resetGlobalConfig() {
	k = nil
	once = sync.Once{}
}

func TestInitGlobalConfig_InitializesKoanfOnce(t *testing.T) {
	resetGlobalConfig()
	InitGlobalConfig()
	assert.NotNil(t, k, "Global koanf instance should be initialized")
}

func TestInitGlobalConfig_IsIdempotent(t *testing.T) {
	resetGlobalConfig()
	InitGlobalConfig()
	firstInstance := k
	InitGlobalConfig()
	secondInstance := k
	assert.Equal(t, firstInstance, secondInstance, "Koanf instance should not change on repeated InitGlobalConfig calls")
}

func TestInitGlobalConfig_KoanfUsesDotDelimiter(t *testing.T) {
	resetGlobalConfig()
	InitGlobalConfig()
	assert.Equal(t, ".", k.Delim(), "Koanf delimiter should be '.'")
}

func TestNewManager_InitializesManagerWithGlobalKoanf(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	assert.NotNil(t, manager, "Manager should not be nil")
	assert.NotNil(t, manager.koanfInstance, "Manager's koanfInstance should not be nil")
	assert.Equal(t, k, manager.koanfInstance, "Manager's koanfInstance should use the global Koanf instance")
}

func TestNewManager_GlobalKoanfIsInitialized(t *testing.T) {
	resetGlobalConfig()
	_ = NewManager()
	assert.NotNil(t, k, "Global Koanf instance should be initialized by NewManager")
}

func TestNewManager_MultipleManagersShareGlobalKoanf(t *testing.T) {
	resetGlobalConfig()
	manager1 := NewManager()
	manager2 := NewManager()
	assert.Equal(t, manager1.koanfInstance, manager2.koanfInstance, "All managers should share the same global Koanf instance")
}

func TestDefaultConfig_ReturnsExpectedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Log.Level, "Default log level should be 'info'")
	assert.Equal(t, "text", cfg.Log.Format, "Default log format should be 'text'")
	assert.Equal(t, 4, cfg.Scan.Concurrency)
	assert.Equal(t, "https://app.netlas.io/api", cfg.Provider.Netlas.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Provider.Netlas.Timeout)
	assert.NoError(t, Validate(cfg), "Defaults should validate")
}

func TestManager_Load_LoadsDefaultsWhenNoFlags(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	err := manager.Load(nil, "")
	assert.NoError(t, err, "Load should not return error when loading defaults")
	cfg := manager.Get()
	assert.Equal(t, "info", cfg.Log.Level, "Default log level should be 'info'")
	assert.Equal(t, "text", cfg.Log.Format, "Default log format should be 'text'")
	assert.Equal(t, 4, cfg.Scan.Concurrency)
}

func TestManager_Load_OverridesWithFlags(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	flags := newTestFlagSet()
	_ = flags.Set("log.level", "error")
	_ = flags.Set("log.format", "json")
	_ = flags.Set("concurrency", "16")
	err := manager.Load(flags, "")
	assert.NoError(t, err, "Load should not return error when loading with flags")
	cfg := manager.Get()
	assert.Equal(t, "error", cfg.Log.Level, "Flag should override log level")
	assert.Equal(t, "json", cfg.Log.Format, "Flag should override log format")
	assert.Equal(t, 16, cfg.Scan.Concurrency, "Mapped flag should override scan.concurrency")
}

func TestManager_Load_DebugFlagSetsLogLevelToDebug(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	flags := newTestFlagSet()
	_ = flags.Set("debug", "true")
	err := manager.Load(flags, "")
	assert.NoError(t, err, "Load should not return error when loading with debug flag")
	cfg := manager.Get()
	assert.Equal(t, "debug", cfg.Log.Level, "Debug flag should set log level to debug")
}

func TestBindFlags_AddsDebugFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	debugFlag := flags.Lookup("debug")
	assert.NotNil(t, debugFlag, "BindFlags should add a 'debug' flag")
	assert.Equal(t, "Enable debug logging", debugFlag.Usage, "Debug flag should have correct usage")
	assert.Equal(t, "false", debugFlag.DefValue, "Debug flag should default to false")
}

func TestBindFlags_DebugFlagDefaultValue(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	val, err := flags.GetBool("debug")
	assert.NoError(t, err, "Should be able to get 'debug' flag value")
	assert.False(t, val, "Default value of 'debug' flag should be false")
}

func TestBindFlags_DebugFlagCanBeSet(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	err := flags.Set("debug", "true")
	assert.NoError(t, err, "Should be able to set 'debug' flag")
	val, err := flags.GetBool("debug")
	assert.NoError(t, err, "Should be able to get 'debug' flag value after setting")
	assert.True(t, val, "Value of 'debug' flag should be true after setting")
}

func TestManager_Load_FileThenEnvThenFlags(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("FWID_PROVIDER_NETLAS_API_KEY", "env-key")
	t.Setenv("FWID_SCAN_CONCURRENCY", "8")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: warn
scan:
  concurrency: 2
provider:
  netlas:
    api_key: file-key
    timeout: 5s
    rate_limit: 0.5
`), 0o644))

	flags := newTestFlagSet()
	_ = flags.Set("log.level", "error")

	manager := NewManager()
	require.NoError(t, manager.Load(flags, path))
	cfg := manager.Get()

	assert.Equal(t, "error", cfg.Log.Level, "flag beats file")
	assert.Equal(t, 8, cfg.Scan.Concurrency, "env beats file")
	assert.Equal(t, "env-key", cfg.Provider.Netlas.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Provider.Netlas.Timeout)
	assert.InDelta(t, 0.5, cfg.Provider.Netlas.RateLimit, 0.0001)
}

func TestManager_Load_NetlasKeyFallback(t *testing.T) {
	resetGlobalConfig()
	t.Setenv(NetlasAPIKeyEnv, "plain-key")

	manager := NewManager()
	require.NoError(t, manager.Load(nil, ""))
	assert.Equal(t, "plain-key", manager.Get().Provider.Netlas.APIKey)
}

func TestManager_Load_RejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"FWID_LOG_FORMAT":                 "xml",
		"FWID_SCAN_CONCURRENCY":           "0",
		"FWID_PROVIDER_NETLAS_BASE_URL":   "not a url",
		"FWID_PROVIDER_NETLAS_RATE_LIMIT": "-1",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			resetGlobalConfig()
			t.Setenv(name, value)
			err := NewManager().Load(nil, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func newTestFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log.level", "info", "")
	flags.String("log.format", "text", "")
	flags.Int("concurrency", 4, "")
	flags.Bool("debug", false, "")
	return flags
}
