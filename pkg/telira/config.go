package telira

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Signaling  SignalingConfig  `mapstructure:"signaling"`
	Captions   CaptionsConfig   `mapstructure:"captions"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Media      MediaConfig      `mapstructure:"media"`
	Ringtone   RingtoneConfig   `mapstructure:"ringtone"`
	History    HistoryConfig    `mapstructure:"history"`
}

type SignalingConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type CaptionsConfig struct {
	Provider        string         `mapstructure:"provider"`
	ChunkIntervalMS int            `mapstructure:"chunk_interval_ms"`
	Settings        map[string]any `mapstructure:"settings"`
}

type TranscriptConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	CorrelationIDLength int     `mapstructure:"correlation_id_length"`
	StoreURL            string  `mapstructure:"store_url"`
}

type MediaConfig struct {
	Microphone string `mapstructure:"microphone"`
}

type RingtoneConfig struct {
	Source string `mapstructure:"source"`
}

type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("captions.chunk_interval_ms", 100)
	v.SetDefault("transcript.similarity_threshold", 0.7)
	v.SetDefault("transcript.correlation_id_length", 53)
	v.SetDefault("ringtone.source", "sounds/ringtone.mp3")
	v.SetDefault("history.limit", 100)
	v.SetDefault("media.microphone", "default")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Signaling.Provider) == "" {
		return fmt.Errorf("signaling.provider is required")
	}
	if strings.TrimSpace(c.Captions.Provider) == "" {
		return fmt.Errorf("captions.provider is required")
	}
	if c.Transcript.SimilarityThreshold <= 0 || c.Transcript.SimilarityThreshold > 1 {
		return fmt.Errorf("transcript.similarity_threshold must be in (0, 1]")
	}
	if c.Transcript.CorrelationIDLength <= 0 {
		return fmt.Errorf("transcript.correlation_id_length must be positive")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Signaling.Settings = expandSettings(cfg.Signaling.Settings)
	cfg.Captions.Settings = expandSettings(cfg.Captions.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
