package internal

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"whiteboard-relay/errors"
	"whiteboard-relay/transport"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

var validate = validator.New()

type Config struct {
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8000" validate:"min=1,max=65535"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	PongTimeout     time.Duration `env:"PONG_TIMEOUT,default=60s" validate:"gt=0"`
	MaxFrameSize    int           `env:"MAX_FRAME_SIZE,default=1048576" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*" validate:"required"`
	AuthSecret      string        `env:"AUTH_SECRET" validate:"omitempty,min=16"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=30s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
}

// LoadConfig reads the relay configuration from the environment, after
// loading a .env file from the working directory when there is one.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)

	if err := validate.Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return config, nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins splits ALLOWED_ORIGINS into a clean list.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Uniq(lo.Compact(origins))
}

func (c Config) ConnOptions() transport.Options {
	return transport.Options{
		WriteTimeout: c.WriteTimeout,
		PongTimeout:  c.PongTimeout,
		MaxFrameSize: int64(c.MaxFrameSize),
	}
}
