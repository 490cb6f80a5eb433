package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrStaleBeforeTimeout = errors.New("client stale-after must not be shorter than request-timeout")
)

type Config struct {
	LogLevel      string        `yaml:"log-level" env:"SCRIBBO_LOG_LEVEL" env-default:"info"`
	Host          string        `yaml:"host" env:"SCRIBBO_HOST" env-default:"localhost"`
	Port          int           `yaml:"port" env:"SCRIBBO_PORT" env-default:"12345"`
	MaxPlayers    int           `yaml:"max-players" env:"SCRIBBO_MAX_PLAYERS" env-default:"8"`
	ReadTimeout   time.Duration `yaml:"read-timeout" env:"SCRIBBO_READ_TIMEOUT" env-default:"5m"`
	WriteTimeout  time.Duration `yaml:"write-timeout" env:"SCRIBBO_WRITE_TIMEOUT" env-default:"10s"`
	OutboundQueue int           `yaml:"outbound-queue" env:"SCRIBBO_OUTBOUND_QUEUE" env-default:"256"`
	HTTPPort      string        `yaml:"http-port" env:"SCRIBBO_HTTP_PORT"`
	Redis         Redis         `yaml:"redis" env-prefix:"SCRIBBO_REDIS_"`
	Client        Client        `yaml:"client" env-prefix:"SCRIBBO_CLIENT_"`
}

// Redis configures the finished-game archive. An empty host disables it.
type Redis struct {
	Host string `yaml:"host" env:"HOST"`
	Port string `yaml:"port" env:"PORT" env-default:"6379"`
}

type Client struct {
	Name           string        `yaml:"name" env:"NAME"`
	RequestTimeout time.Duration `yaml:"request-timeout" env:"REQUEST_TIMEOUT" env-default:"5s"`
	StaleAfter     time.Duration `yaml:"stale-after" env:"STALE_AFTER" env-default:"10s"`
}

// Load - reads path when it exists, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err = cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("unable to load config file %s: %w", path, err)
		}

		return config, nil
	}

	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("unable to read config from environment: %w", err)
	}

	return config, nil
}

// Validate - checks values that cannot be defaulted.
func (that *Config) Validate() error {
	if err := ValidatePort(that.Port); err != nil {
		return err
	}

	if that.MaxPlayers <= 0 {
		return fmt.Errorf("max-players must be positive, got %d", that.MaxPlayers)
	}

	if that.Client.StaleAfter < that.Client.RequestTimeout {
		return fmt.Errorf("%w: stale-after %s, request-timeout %s", ErrStaleBeforeTimeout, that.Client.StaleAfter, that.Client.RequestTimeout)
	}

	return nil
}

// Addr - host:port of the game server.
func (that *Config) Addr() string {
	return net.JoinHostPort(that.Host, strconv.Itoa(that.Port))
}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	return nil
}

// Enabled - reports whether the archive is configured.
func (that *Redis) Enabled() bool {
	return that.Host != ""
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
