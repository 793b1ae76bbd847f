// Package config loads and validates the voxstream startup configuration
// (SPEC_FULL.md §6). Configuration errors refuse to start, per §7.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// HallucinationConfig is the JSON form of internal/hallucination.Config:
// MinTokenRun maps to RunLength and MinRepeatCount to RepeatCount.
type HallucinationConfig struct {
	Enabled        bool `json:"enabled"`
	MinTokenRun    int  `json:"min_token_run"`
	MinRepeatCount int  `json:"min_repeat_count"`
}

// BackendConfig configures one translation backend in the fallback chain.
type BackendConfig struct {
	Kind            string  `json:"kind"`
	Endpoint        string  `json:"endpoint"`
	TimeoutMs       int     `json:"timeout_ms"`
	RateLimitPerSec float64 `json:"rate_limit_per_sec"`
}

// TranslationConfig configures the Translator stage.
type TranslationConfig struct {
	Enabled        bool            `json:"enabled"`
	SourcePolicy   string          `json:"source_policy"`
	SourceLanguage string          `json:"source_language"`
	TargetLanguage string          `json:"target_language"`
	Concurrency    int             `json:"concurrency"`
	Backends       []BackendConfig `json:"backends"`
}

// HubConfig configures the Broadcast Hub.
type HubConfig struct {
	BindAddress        string  `json:"bind_address"`
	Port               int     `json:"port"`
	MaxSubscribers     int     `json:"max_subscribers"`
	HistoryCap         int     `json:"history_cap"`
	SubscriberQueue    int     `json:"subscriber_queue"`
	SlowClientGraceSec float64 `json:"slow_client_grace_sec"`
	ShutdownDrainSec   float64 `json:"shutdown_drain_sec"`
}

// Addr joins BindAddress and Port into the host:port string the hub's
// listener binds to.
func (c HubConfig) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// PersistenceConfig configures the Persistence stage.
type PersistenceConfig struct {
	DataDir      string `json:"data_dir"`
	KeepSegments bool   `json:"keep_segments"`
}

// Config is the full startup configuration tree, decoded from JSON and then
// overridden by VOXSTREAM_<SECTION>_<FIELD> environment variables.
type Config struct {
	SampleRate           int                  `json:"sample_rate"`
	FrameSizeMs          int                  `json:"frame_size_ms"`
	RingCapacitySec      float64              `json:"ring_capacity_sec"`
	VADThreshold         float64              `json:"vad_threshold"`
	VADWindowSec         float64              `json:"vad_window_sec"`
	SilenceThresholdSec  float64              `json:"silence_threshold_sec"`
	PreSpeechPadSec      float64              `json:"pre_speech_pad_sec"`
	PostSpeechPadSec     float64              `json:"post_speech_pad_sec"`
	MinSpeechDurationSec float64              `json:"min_speech_duration_sec"`
	Workers              int                 `json:"workers"`
	Hallucination        HallucinationConfig `json:"hallucination_filter"`
	Translation          TranslationConfig   `json:"translation"`
	Hub                  HubConfig           `json:"hub"`
	Persistence          PersistenceConfig   `json:"persistence"`
}

// Default returns the configuration with every default from SPEC_FULL.md §6
// filled in.
func Default() Config {
	return Config{
		SampleRate:           16000,
		FrameSizeMs:          20,
		RingCapacitySec:      10.0,
		VADThreshold:         0.5,
		VADWindowSec:         0.5,
		SilenceThresholdSec:  1.5,
		PreSpeechPadSec:      0.5,
		PostSpeechPadSec:     0.5,
		MinSpeechDurationSec: 0.5,
		Workers:              2,
		Hallucination: HallucinationConfig{
			Enabled: true, MinTokenRun: 3, MinRepeatCount: 3,
		},
		Translation: TranslationConfig{
			Enabled:        false,
			SourcePolicy:   "detected",
			TargetLanguage: "en",
			Concurrency:    1,
		},
		Hub: HubConfig{
			BindAddress:        "127.0.0.1",
			Port:               8765,
			MaxSubscribers:     32,
			HistoryCap:         100,
			SubscriberQueue:    256,
			SlowClientGraceSec: 30,
			ShutdownDrainSec:   3,
		},
		Persistence: PersistenceConfig{
			DataDir:      "./voxstream-data",
			KeepSegments: false,
		},
	}
}

// Load reads path as JSON over the defaults, applies VOXSTREAM_* environment
// overrides, and validates the result. A missing path is not an error: the
// defaults (plus any environment overrides) are used as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants SPEC_FULL.md's Supervisor refuses to
// start without.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive")
	}
	if c.FrameSizeMs <= 0 {
		return fmt.Errorf("config: frame_size_ms must be positive")
	}
	if c.RingCapacitySec <= 0 {
		return fmt.Errorf("config: ring_capacity_sec must be positive")
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return fmt.Errorf("config: vad_threshold must be in [0,1]")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	if c.Translation.Enabled {
		switch c.Translation.SourcePolicy {
		case "detected", "explicit":
		default:
			return fmt.Errorf("config: translation.source_policy must be %q or %q", "detected", "explicit")
		}
		if c.Translation.SourcePolicy == "explicit" && c.Translation.SourceLanguage == "" {
			return fmt.Errorf("config: translation.source_language is required when source_policy is explicit")
		}
		if len(c.Translation.Backends) == 0 {
			return fmt.Errorf("config: translation.backends must name at least one backend when translation is enabled")
		}
	}
	if c.Hub.MaxSubscribers <= 0 {
		return fmt.Errorf("config: hub.max_subscribers must be positive")
	}
	if c.Hub.Port <= 0 {
		return fmt.Errorf("config: hub.port must be positive")
	}
	if c.Persistence.DataDir == "" {
		return fmt.Errorf("config: persistence.data_dir is required")
	}
	return nil
}

// applyEnvOverrides resolves VOXSTREAM_<SECTION>_<FIELD> environment
// variables, in the style of the teacher's getDatabaseURL/getRedisAddr
// helpers, generalized across the scalar fields of this struct tree. The
// hallucination_filter fields and the translation backends list have no
// environment override.
func applyEnvOverrides(cfg *Config) {
	overrideInt(&cfg.SampleRate, "VOXSTREAM_SAMPLE_RATE")
	overrideInt(&cfg.FrameSizeMs, "VOXSTREAM_FRAME_SIZE_MS")
	overrideFloat(&cfg.RingCapacitySec, "VOXSTREAM_RING_CAPACITY_SEC")
	overrideFloat(&cfg.VADThreshold, "VOXSTREAM_VAD_THRESHOLD")
	overrideFloat(&cfg.VADWindowSec, "VOXSTREAM_VAD_WINDOW_SEC")
	overrideFloat(&cfg.SilenceThresholdSec, "VOXSTREAM_SILENCE_THRESHOLD_SEC")
	overrideFloat(&cfg.PreSpeechPadSec, "VOXSTREAM_PRE_SPEECH_PAD_SEC")
	overrideFloat(&cfg.PostSpeechPadSec, "VOXSTREAM_POST_SPEECH_PAD_SEC")
	overrideFloat(&cfg.MinSpeechDurationSec, "VOXSTREAM_MIN_SPEECH_DURATION_SEC")
	overrideInt(&cfg.Workers, "VOXSTREAM_WORKERS")

	overrideBool(&cfg.Translation.Enabled, "VOXSTREAM_TRANSLATION_ENABLED")
	overrideString(&cfg.Translation.SourcePolicy, "VOXSTREAM_TRANSLATION_SOURCE_POLICY")
	overrideString(&cfg.Translation.SourceLanguage, "VOXSTREAM_TRANSLATION_SOURCE_LANGUAGE")
	overrideString(&cfg.Translation.TargetLanguage, "VOXSTREAM_TRANSLATION_TARGET_LANGUAGE")
	overrideInt(&cfg.Translation.Concurrency, "VOXSTREAM_TRANSLATION_CONCURRENCY")

	overrideString(&cfg.Hub.BindAddress, "VOXSTREAM_HUB_BIND_ADDRESS")
	overrideInt(&cfg.Hub.Port, "VOXSTREAM_HUB_PORT")
	overrideInt(&cfg.Hub.MaxSubscribers, "VOXSTREAM_HUB_MAX_SUBSCRIBERS")
	overrideInt(&cfg.Hub.HistoryCap, "VOXSTREAM_HUB_HISTORY_CAP")
	overrideInt(&cfg.Hub.SubscriberQueue, "VOXSTREAM_HUB_SUBSCRIBER_QUEUE")
	overrideFloat(&cfg.Hub.SlowClientGraceSec, "VOXSTREAM_HUB_SLOW_CLIENT_GRACE_SEC")
	overrideFloat(&cfg.Hub.ShutdownDrainSec, "VOXSTREAM_HUB_SHUTDOWN_DRAIN_SEC")

	overrideString(&cfg.Persistence.DataDir, "VOXSTREAM_PERSISTENCE_DATA_DIR")
	overrideBool(&cfg.Persistence.KeepSegments, "VOXSTREAM_PERSISTENCE_KEEP_SEGMENTS")
}

func overrideString(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, envVar string) {
	v := os.Getenv(envVar)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func overrideFloat(dst *float64, envVar string) {
	v := os.Getenv(envVar)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

func overrideBool(dst *bool, envVar string) {
	v := strings.ToLower(os.Getenv(envVar))
	switch v {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}
