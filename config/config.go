package config

import (
	"os"
	"time"

	duration "github.com/ChannelMeter/iso8601duration"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "https://developer.cumtd.com/api/v2.2/json"
	DefaultPollInterval = "PT15S"
)

type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
	MaxDepartures  int    `yaml:"max_departures" validate:"gte=0"`
}

type RedisConfig struct {
	Host      string `yaml:"host" validate:"required"`
	MaxActive int    `yaml:"max_active" validate:"gte=0"`
	MaxIdle   int    `yaml:"max_idle" validate:"gte=0"`
}

type PollConfig struct {
	// Interval is an ISO8601 duration, e.g. PT15S.
	Interval string `yaml:"interval"`
}

type SNSConfig struct {
	TopicARN string `yaml:"topic_arn"`
	Region   string `yaml:"region"`
}

type PresenterConfig struct {
	Port int `yaml:"port" validate:"gte=0"`
}

type AppConfig struct {
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Redis     RedisConfig     `yaml:"redis" validate:"required"`
	Poll      PollConfig      `yaml:"poll"`
	SNS       SNSConfig       `yaml:"sns"`
	Presenter PresenterConfig `yaml:"presenter"`
}

// Load reads and validates the application configuration. Defaults are
// applied after validation so a minimal file only needs the Redis host.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file `%s`", path)
	}

	cfg := AppConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config file `%s`", path)
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultBaseURL
	}
	if cfg.Upstream.TimeoutSeconds == 0 {
		cfg.Upstream.TimeoutSeconds = 10
	}
	if cfg.Upstream.MaxDepartures == 0 {
		cfg.Upstream.MaxDepartures = 10
	}
	if cfg.Poll.Interval == "" {
		cfg.Poll.Interval = DefaultPollInterval
	}
	if cfg.Presenter.Port == 0 {
		cfg.Presenter.Port = 8080
	}

	if _, err := cfg.PollInterval(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) PollInterval() (time.Duration, error) {
	parsed, err := duration.FromString(c.Poll.Interval)
	if err != nil {
		return 0, errors.Wrapf(err, "poll interval `%s` is not a valid ISO8601 duration", c.Poll.Interval)
	}

	interval := parsed.ToDuration()
	if interval <= 0 {
		return 0, errors.Errorf("poll interval `%s` must be greater than zero", c.Poll.Interval)
	}

	return interval, nil
}
