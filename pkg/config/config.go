// Package config загружает конфигурацию ivrctl: YAML файл, переменные
// окружения с префиксом IVR_ и значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arzzra/ivr_control/pkg/ivr"
	"github.com/arzzra/ivr_control/pkg/logging"
)

// EnvPrefix префикс переменных окружения: IVR_GATEWAY_ADDRESS и т.д.
const EnvPrefix = "IVR"

// ErrInvalidConfig конфигурация не прошла проверку
var ErrInvalidConfig = errors.New("invalid configuration")

// Config конфигурация приложения
type Config struct {
	Gateway GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Asr     AsrConfig      `mapstructure:"asr" yaml:"asr"`
	Log     logging.Config `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// GatewayConfig подключение к медиа-шлюзу
type GatewayConfig struct {
	// Address адрес шлюза host:port
	Address string `mapstructure:"address" yaml:"address"`
	// LocalAddress локальный UDP адрес для команд и уведомлений
	LocalAddress string `mapstructure:"local_address" yaml:"local_address"`
	// EndpointName имя IVR endpoint'а, обычно wildcard
	EndpointName   string        `mapstructure:"endpoint_name" yaml:"endpoint_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MailboxSize    int           `mapstructure:"mailbox_size" yaml:"mailbox_size"`
}

// AsrConfig параметры сигнала распознавания по умолчанию
type AsrConfig struct {
	Driver         string        `mapstructure:"driver" yaml:"driver"`
	Language       string        `mapstructure:"language" yaml:"language"`
	Prompts        []string      `mapstructure:"prompts" yaml:"prompts"`
	EndInputKey    string        `mapstructure:"end_input_key" yaml:"end_input_key"`
	MaxDuration    time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	WaitingTime    time.Duration `mapstructure:"waiting_time" yaml:"waiting_time"`
	PostSpeechTime time.Duration `mapstructure:"post_speech_time" yaml:"post_speech_time"`
	Hints          string        `mapstructure:"hints" yaml:"hints"`
}

// MetricsConfig HTTP endpoint для prometheus. Пустой Listen отключает его.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Path   string `mapstructure:"path" yaml:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.address", "127.0.0.1:2427")
	v.SetDefault("gateway.local_address", "0.0.0.0:2727")
	v.SetDefault("gateway.endpoint_name", "mobicents/ivr/$@127.0.0.1:2427")
	v.SetDefault("gateway.request_timeout", 5*time.Second)
	v.SetDefault("gateway.mailbox_size", ivr.DefaultMailboxSize)

	v.SetDefault("asr.driver", "no_name_driver")
	v.SetDefault("asr.language", "en-US")
	v.SetDefault("asr.prompts", []string{})
	v.SetDefault("asr.end_input_key", "#")
	v.SetDefault("asr.max_duration", 30*time.Second)
	v.SetDefault("asr.waiting_time", 5*time.Second)
	v.SetDefault("asr.post_speech_time", time.Second)
	v.SetDefault("asr.hints", "")

	def := logging.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.output", def.Output)
	v.SetDefault("log.max_size", def.MaxSize)
	v.SetDefault("log.max_backups", def.MaxBackups)
	v.SetDefault("log.max_age", def.MaxAge)
	v.SetDefault("log.compress", def.Compress)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")
}

// Load читает конфигурацию. Пустой path означает только окружение и
// значения по умолчанию.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Gateway.Address); err != nil {
		return fmt.Errorf("%w: gateway.address %q: %v", ErrInvalidConfig, c.Gateway.Address, err)
	}
	if _, _, err := net.SplitHostPort(c.Gateway.LocalAddress); err != nil {
		return fmt.Errorf("%w: gateway.local_address %q: %v", ErrInvalidConfig, c.Gateway.LocalAddress, err)
	}
	if strings.TrimSpace(c.Gateway.EndpointName) == "" {
		return fmt.Errorf("%w: gateway.endpoint_name is empty", ErrInvalidConfig)
	}
	if c.Gateway.RequestTimeout <= 0 {
		return fmt.Errorf("%w: gateway.request_timeout must be positive", ErrInvalidConfig)
	}
	if c.Gateway.MailboxSize < 0 {
		return fmt.Errorf("%w: gateway.mailbox_size must not be negative", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Asr.Signal(); err != nil {
		return fmt.Errorf("%w: asr: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Signal создает сигнал распознавания из конфигурации
func (a AsrConfig) Signal() (*ivr.AsrSignal, error) {
	return ivr.NewAsrSignal(ivr.AsrSignalConfig{
		Driver:         a.Driver,
		Language:       a.Language,
		Prompts:        a.Prompts,
		EndInputKey:    a.EndInputKey,
		MaxDuration:    a.MaxDuration,
		WaitingTime:    a.WaitingTime,
		PostSpeechTime: a.PostSpeechTime,
		Hints:          a.Hints,
	})
}

// YAML эффективная конфигурация в виде YAML
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
