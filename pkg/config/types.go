// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for fwid.
type Config struct {
	Log      LogConfig      `description:"Logging configuration" koanf:"log"`
	Scan     ScanConfig     `description:"Scan execution" koanf:"scan"`
	Provider ProviderConfig `description:"Observation providers" koanf:"provider"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: debug | info | warn | error" koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"oneof=text json"`
}

// ScanConfig holds scan execution settings.
type ScanConfig struct {
	Concurrency int `description:"Targets evaluated concurrently" koanf:"concurrency" validate:"min=1,max=256"`
}

// ProviderConfig groups provider settings.
type ProviderConfig struct {
	Netlas NetlasConfig `description:"Netlas API provider" koanf:"netlas"`
}

// NetlasConfig holds Netlas API settings. The API key may also come from
// the NETLAS_API_KEY environment variable.
type NetlasConfig struct {
	APIKey    string        `description:"Netlas API key" koanf:"api_key"`
	BaseURL   string        `description:"Netlas API base URL" koanf:"base_url" validate:"required,url"`
	Timeout   time.Duration `description:"HTTP timeout per request" koanf:"timeout" validate:"gt=0"`
	RateLimit float64       `description:"Requests per second (0 disables pacing)" koanf:"rate_limit" validate:"gte=0"`
	Burst     int           `description:"Request burst size" koanf:"burst" validate:"min=1"`
}
