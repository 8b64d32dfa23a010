// Package config loads parley settings from an optional TOML file, PARLEY_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "parley"
	configType = "toml"
	envPrefix  = "PARLEY"
)

type Config struct {
	Rate         RateConfig
	Conversation ConversationConfig
	Social       SocialConfig
	Simulation   SimulationConfig
	Transport    TransportConfig
	Credentials  CredentialsConfig
	LogLevel     string
	Telemetry    TelemetryConfig
}

type RateConfig struct {
	Capacity int
	Window   time.Duration
}

type ConversationConfig struct {
	HearingRange   float64
	SpeechRate     float64 // tokens per second
	PrefetchLead   time.Duration
	ReplyThreshold float64 // minimum gregariousness to accept an invitation
}

type SocialConfig struct {
	CrowdThreshold   int
	AttractThreshold float64
	RepelThreshold   float64
	ForceMagnitude   float64
}

type SimulationConfig struct {
	Tick          time.Duration
	MoveSpeed     float64
	ThinkInterval time.Duration
}

type TransportConfig struct {
	Default        string
	Latency        time.Duration
	OpenAIModel    string
	AnthropicModel string
	GeminiModel    string
	MaxTokens      int64
}

type CredentialsConfig struct {
	Dir string
}

type TelemetryConfig struct {
	Endpoint string
	Insecure bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rate.capacity", 30)
	v.SetDefault("rate.window", "60s")
	v.SetDefault("conversation.hearing_range", 15.0)
	v.SetDefault("conversation.speech_rate", 2.0)
	v.SetDefault("conversation.prefetch_lead", "1s")
	v.SetDefault("conversation.reply_threshold", 0.4)
	v.SetDefault("social.crowd_threshold", 4)
	v.SetDefault("social.attract_threshold", 0.7)
	v.SetDefault("social.repel_threshold", 0.3)
	v.SetDefault("social.force_magnitude", 1.0)
	v.SetDefault("simulation.tick", "100ms")
	v.SetDefault("simulation.move_speed", 1.0)
	v.SetDefault("simulation.think_interval", "20s")
	v.SetDefault("transport.default", "scripted")
	v.SetDefault("transport.latency", "300ms")
	v.SetDefault("transport.openai_model", "gpt-4o-mini")
	v.SetDefault("transport.anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("transport.gemini_model", "gemini-2.0-flash")
	v.SetDefault("transport.max_tokens", 256)
	v.SetDefault("credentials.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
}

// Load reads configuration through v. When path is empty the working
// directory is searched for parley.toml; a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Rate: RateConfig{
			Capacity: v.GetInt("rate.capacity"),
			Window:   v.GetDuration("rate.window"),
		},
		Conversation: ConversationConfig{
			HearingRange:   v.GetFloat64("conversation.hearing_range"),
			SpeechRate:     v.GetFloat64("conversation.speech_rate"),
			PrefetchLead:   v.GetDuration("conversation.prefetch_lead"),
			ReplyThreshold: v.GetFloat64("conversation.reply_threshold"),
		},
		Social: SocialConfig{
			CrowdThreshold:   v.GetInt("social.crowd_threshold"),
			AttractThreshold: v.GetFloat64("social.attract_threshold"),
			RepelThreshold:   v.GetFloat64("social.repel_threshold"),
			ForceMagnitude:   v.GetFloat64("social.force_magnitude"),
		},
		Simulation: SimulationConfig{
			Tick:          v.GetDuration("simulation.tick"),
			MoveSpeed:     v.GetFloat64("simulation.move_speed"),
			ThinkInterval: v.GetDuration("simulation.think_interval"),
		},
		Transport: TransportConfig{
			Default:        v.GetString("transport.default"),
			Latency:        v.GetDuration("transport.latency"),
			OpenAIModel:    v.GetString("transport.openai_model"),
			AnthropicModel: v.GetString("transport.anthropic_model"),
			GeminiModel:    v.GetString("transport.gemini_model"),
			MaxTokens:      v.GetInt64("transport.max_tokens"),
		},
		Credentials: CredentialsConfig{
			Dir: v.GetString("credentials.dir"),
		},
		LogLevel: v.GetString("log.level"),
		Telemetry: TelemetryConfig{
			Endpoint: v.GetString("telemetry.endpoint"),
			Insecure: v.GetBool("telemetry.insecure"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Rate.Capacity <= 0 {
		return fmt.Errorf("config: rate.capacity must be positive")
	}
	if c.Rate.Window <= 0 {
		return fmt.Errorf("config: rate.window must be positive")
	}
	if c.Conversation.HearingRange <= 0 {
		return fmt.Errorf("config: conversation.hearing_range must be positive")
	}
	if c.Conversation.SpeechRate <= 0 {
		return fmt.Errorf("config: conversation.speech_rate must be positive")
	}
	if c.Conversation.PrefetchLead < 0 {
		return fmt.Errorf("config: conversation.prefetch_lead must not be negative")
	}
	if c.Social.RepelThreshold > c.Social.AttractThreshold {
		return fmt.Errorf("config: social.repel_threshold must not exceed social.attract_threshold")
	}
	if c.Simulation.Tick <= 0 {
		return fmt.Errorf("config: simulation.tick must be positive")
	}
	return nil
}
