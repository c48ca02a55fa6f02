package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"

	"memory-filter/internal/domain"
	"memory-filter/internal/trace"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	MemoryAPIKey       string        `env:"MEMORY_API_KEY"`
	MemoryAPIBaseURL   string        `env:"MEMORY_API_BASE_URL" envDefault:"http://host.docker.internal:3000/memory"`
	MemoryPriority     int           `env:"MEMORY_PRIORITY" envDefault:"0"`
	MemoryDebug        bool          `env:"MEMORY_DEBUG" envDefault:"false"`
	MemoryFetchTimeout time.Duration `env:"MEMORY_FETCH_TIMEOUT" envDefault:"5s"`
	MemoryPostTimeout  time.Duration `env:"MEMORY_POST_TIMEOUT" envDefault:"10s"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	OTLPURLPath  string `env:"OTEL_EXPORTER_OTLP_TRACES_PATH"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Valves devuelve los ajustes iniciales del filtro.
func (c *Config) Valves() domain.Valves {
	return domain.Valves{
		Priority:   c.MemoryPriority,
		APIKey:     c.MemoryAPIKey,
		APIBaseURL: c.MemoryAPIBaseURL,
		Debug:      c.MemoryDebug,
	}
}

// Tracing devuelve la configuración del exportador OTLP.
func (c *Config) Tracing() trace.Config {
	return trace.Config{
		Endpoint: c.OTLPEndpoint,
		URLPath:  c.OTLPURLPath,
		Insecure: c.OTLPInsecure,
	}
}

type fileConfig struct {
	Memory struct {
		APIKey       string `toml:"api_key"`
		APIBaseURL   string `toml:"api_base_url"`
		Priority     int    `toml:"priority"`
		Debug        bool   `toml:"debug"`
		FetchTimeout string `toml:"fetch_timeout"`
		PostTimeout  string `toml:"post_timeout"`
	} `toml:"memory"`
	JWT struct {
		Secret string `toml:"secret"`
		Issuer string `toml:"issuer"`
	} `toml:"jwt"`
	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`
}

// ApplyFile sobreescribe la configuración con las claves presentes en un
// archivo TOML. Un archivo inexistente no es error.
func (c *Config) ApplyFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if md.IsDefined("memory", "api_key") {
		c.MemoryAPIKey = fc.Memory.APIKey
	}
	if md.IsDefined("memory", "api_base_url") {
		c.MemoryAPIBaseURL = fc.Memory.APIBaseURL
	}
	if md.IsDefined("memory", "priority") {
		c.MemoryPriority = fc.Memory.Priority
	}
	if md.IsDefined("memory", "debug") {
		c.MemoryDebug = fc.Memory.Debug
	}
	if md.IsDefined("memory", "fetch_timeout") {
		d, err := time.ParseDuration(fc.Memory.FetchTimeout)
		if err != nil {
			return fmt.Errorf("memory.fetch_timeout: %w", err)
		}
		c.MemoryFetchTimeout = d
	}
	if md.IsDefined("memory", "post_timeout") {
		d, err := time.ParseDuration(fc.Memory.PostTimeout)
		if err != nil {
			return fmt.Errorf("memory.post_timeout: %w", err)
		}
		c.MemoryPostTimeout = d
	}
	if md.IsDefined("jwt", "secret") {
		c.JWTSecret = fc.JWT.Secret
	}
	if md.IsDefined("jwt", "issuer") {
		c.JWTIssuer = fc.JWT.Issuer
	}
	if md.IsDefined("redis", "addr") {
		c.RedisAddr = fc.Redis.Addr
	}
	if md.IsDefined("redis", "password") {
		c.RedisPassword = fc.Redis.Password
	}
	if md.IsDefined("redis", "db") {
		c.RedisDB = fc.Redis.DB
	}
	return nil
}
