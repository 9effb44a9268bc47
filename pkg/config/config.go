package config

import (
	"io"
	"time"

	"github.com/getmockd/contractd/pkg/logging"
	"github.com/getmockd/contractd/pkg/mockserver"
)

// Config is the run configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the mock server.
type ServerConfig struct {
	Bind                 string        `yaml:"bind" validate:"required,bind"`
	TLS                  *TLSConfig    `yaml:"tls,omitempty"`
	CORSPreflight        bool          `yaml:"corsPreflight"`
	TieBreak             string        `yaml:"tieBreak" validate:"omitempty,oneof=declaration-order best-fit"`
	MaxConnections       int           `yaml:"maxConnections" validate:"gte=0"`
	ReadTimeout          time.Duration `yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout         time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	MaxBodySize          int64         `yaml:"maxBodySize" validate:"gte=0"`
	AllowUnexpectedQuery bool          `yaml:"allowUnexpectedQuery"`
	NoUnexpectedKeys     bool          `yaml:"noUnexpectedKeys"`
}

// TLSConfig enables HTTPS. Without a key pair a self-signed certificate is
// generated.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile" validate:"required_with=KeyFile"`
	KeyFile  string `yaml:"keyFile" validate:"required_with=CertFile"`
}

// LoggingConfig configures the operational logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := mockserver.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Bind:         d.Addr,
			TieBreak:     string(d.TieBreak),
			ReadTimeout:  d.ReadTimeout,
			WriteTimeout: d.WriteTimeout,
			MaxBodySize:  d.MaxBodySize,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// ServerConfig converts the server section for mockserver.New.
func (c *Config) ServerConfig() mockserver.Config {
	s := c.Server
	cfg := mockserver.Config{
		Addr:                 s.Bind,
		CORSPreflight:        s.CORSPreflight,
		TieBreak:             mockserver.TieBreak(s.TieBreak),
		MaxConnections:       s.MaxConnections,
		ReadTimeout:          s.ReadTimeout,
		WriteTimeout:         s.WriteTimeout,
		MaxBodySize:          s.MaxBodySize,
		AllowUnexpectedQuery: s.AllowUnexpectedQuery,
		NoUnexpectedKeys:     s.NoUnexpectedKeys,
	}
	if s.TLS != nil && (s.TLS.Enabled || s.TLS.CertFile != "") {
		cfg.TLS = &mockserver.TLSConfig{CertFile: s.TLS.CertFile, KeyFile: s.TLS.KeyFile}
	}
	return cfg
}

// LoggingConfig converts the logging section, applying the
// CONTRACTD_LOG_LEVEL override found through lookup.
func (c *Config) LoggingConfig(out io.Writer, lookup func(string) (string, bool)) logging.Config {
	cfg := logging.Config{
		Level:  logging.ParseLevel(c.Logging.Level),
		Format: logging.ParseFormat(c.Logging.Format),
		Output: out,
	}
	if lookup != nil {
		cfg = logging.ApplyEnv(cfg, lookup)
	}
	return cfg
}
