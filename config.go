package engram

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EmbedderConfig selects and parameterizes the embedding backend.
type EmbedderConfig struct {
	Provider string `yaml:"provider"` // "local" (default), "ollama", "openai"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	URL      string `yaml:"url"`
}

// LLMConfig selects and parameterizes the optional summarization backend.
// A zero-value LLMConfig (Provider == "") disables Phase 4 of consolidation.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "local", "anthropic", "openai"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"apiKey"`
	URL       string `yaml:"url"`
	MaxTokens int    `yaml:"maxTokens"`
}

// AutoRememberConfig controls classifier-driven automatic storage.
// It also accepts a bare YAML boolean, which toggles Enabled while leaving
// every other field at its default.
type AutoRememberConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Heuristic     bool     `yaml:"heuristic"`
	MinImportance float64  `yaml:"minImportance"`
	DefaultTags   []string `yaml:"defaultTags"`

	// configured records that this value came through UnmarshalYAML, so
	// ApplyDefaults can tell "explicitly configured" apart from "never set".
	configured bool `yaml:"-"`
}

// UnmarshalYAML implements the bool-or-object form documented in §6. In the
// object form, enabled defaults to true when the key is absent, but an
// explicit `enabled: false` is honored rather than overwritten.
func (a *AutoRememberConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var asBool bool
	if err := unmarshal(&asBool); err == nil {
		a.Enabled = asBool
		a.configured = true
		return nil
	}
	var p struct {
		Enabled       *bool    `yaml:"enabled"`
		Heuristic     bool     `yaml:"heuristic"`
		MinImportance float64  `yaml:"minImportance"`
		DefaultTags   []string `yaml:"defaultTags"`
	}
	if err := unmarshal(&p); err != nil {
		return err
	}
	a.Heuristic = p.Heuristic
	a.MinImportance = p.MinImportance
	a.DefaultTags = p.DefaultTags
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	} else {
		a.Enabled = true
	}
	a.configured = true
	return nil
}

// AutoConsolidateConfig controls curation cadence and thresholds.
// It also accepts a bare YAML boolean, which toggles Enabled while leaving
// every other field at its default.
type AutoConsolidateConfig struct {
	Enabled          bool          `yaml:"enabled"`
	EveryNWrites     int           `yaml:"everyNWrites"`
	IntervalMs       int64         `yaml:"intervalMs"`
	MinClusterSize   int           `yaml:"minClusterSize"`
	ClusterThreshold float64       `yaml:"clusterThreshold"`
	HotDays          float64       `yaml:"hotDays"`
	WarmDays         float64       `yaml:"warmDays"`
	ColdDays         float64       `yaml:"coldDays"`
	Interval         time.Duration `yaml:"-"` // resolved from IntervalMs

	// configured records that this value came through UnmarshalYAML, so
	// ApplyDefaults can tell "explicitly configured" apart from "never set".
	configured bool `yaml:"-"`
}

// UnmarshalYAML implements the bool-or-object form documented in §6. In the
// object form, enabled defaults to true when the key is absent, but an
// explicit `enabled: false` is honored rather than overwritten.
func (a *AutoConsolidateConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var asBool bool
	if err := unmarshal(&asBool); err == nil {
		a.Enabled = asBool
		a.configured = true
		return nil
	}
	var p struct {
		Enabled          *bool   `yaml:"enabled"`
		EveryNWrites     int     `yaml:"everyNWrites"`
		IntervalMs       int64   `yaml:"intervalMs"`
		MinClusterSize   int     `yaml:"minClusterSize"`
		ClusterThreshold float64 `yaml:"clusterThreshold"`
		HotDays          float64 `yaml:"hotDays"`
		WarmDays         float64 `yaml:"warmDays"`
		ColdDays         float64 `yaml:"coldDays"`
	}
	if err := unmarshal(&p); err != nil {
		return err
	}
	a.EveryNWrites = p.EveryNWrites
	a.IntervalMs = p.IntervalMs
	a.MinClusterSize = p.MinClusterSize
	a.ClusterThreshold = p.ClusterThreshold
	a.HotDays = p.HotDays
	a.WarmDays = p.WarmDays
	a.ColdDays = p.ColdDays
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	} else {
		a.Enabled = true
	}
	a.configured = true
	return nil
}

// Config holds every tunable of an engram store. Zero-valued fields are
// filled with the defaults documented in the specification by
// ApplyDefaults; construct a Config by struct literal (the common case) or
// load one from YAML with LoadConfigFile.
type Config struct {
	File string `yaml:"file"` // required: path to the store's single file

	Embedder         EmbedderConfig        `yaml:"embedder"`
	LLM              LLMConfig             `yaml:"llm"`
	AutoRemember     AutoRememberConfig    `yaml:"autoRemember"`
	AutoConsolidate  AutoConsolidateConfig `yaml:"autoConsolidate"`
	DeduplicateThreshold float64           `yaml:"deduplicateThreshold"`
	MaxMemories          int               `yaml:"maxMemories"`
	Debug                bool              `yaml:"debug"`

	// Ambient collaborators. nil ⇒ a default is constructed.
	Logger  *zap.Logger
	Metrics *prometheus.Registry

	applied bool
}

// ApplyDefaults fills zero-valued fields with the defaults from §6 of the
// specification. Idempotent; safe to call more than once.
func (c *Config) ApplyDefaults() error {
	if c.File == "" {
		return &ConfigError{Reason: "file is required"}
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = "local"
	}
	if c.Embedder.Model == "" && c.Embedder.Provider == "local" {
		c.Embedder.Model = "MiniLM"
	}
	if c.Embedder.Provider != "local" && c.Embedder.Provider != "ollama" && c.Embedder.Provider != "openai" {
		return &ConfigError{Reason: fmt.Sprintf("unknown embedder provider %q", c.Embedder.Provider)}
	}
	if c.Embedder.Provider == "openai" && c.Embedder.APIKey == "" {
		return &ConfigError{Reason: "embedder.apiKey is required for provider \"openai\""}
	}

	if c.LLM.Provider != "" {
		switch c.LLM.Provider {
		case "local", "anthropic", "openai":
		default:
			return &ConfigError{Reason: fmt.Sprintf("unknown llm provider %q", c.LLM.Provider)}
		}
		if c.LLM.Provider != "local" && c.LLM.APIKey == "" {
			return &ConfigError{Reason: fmt.Sprintf("llm.apiKey is required for provider %q", c.LLM.Provider)}
		}
		if c.LLM.MaxTokens == 0 {
			c.LLM.MaxTokens = 512
		}
	}

	if !c.applied {
		// Only stamp defaults on first application, so a second ApplyDefaults
		// call doesn't re-derive values a caller has since changed. Enabled is
		// gated on "was this subsystem explicitly configured" rather than on
		// a tunable's zero-ness, so a caller that set enabled: false through
		// UnmarshalYAML's bare-bool form (which never touches the tunables)
		// doesn't get the subsystem silently turned back on.
		if !c.AutoRemember.configured {
			c.AutoRemember.Enabled = true
		}
		if c.AutoRemember.MinImportance == 0 {
			c.AutoRemember.MinImportance = 0.3
			c.AutoRemember.Heuristic = true
		}
		if !c.AutoConsolidate.configured {
			c.AutoConsolidate.Enabled = true
		}
		// The cadence pair EveryNWrites/IntervalMs defaults only when both
		// are zero, so setting one leaves the other as given (IntervalMs 0
		// disables the timer). The cluster and decay tunables each default
		// independently, so setting only the cadence fields doesn't leave
		// them at their Go zero value.
		if c.AutoConsolidate.EveryNWrites == 0 && c.AutoConsolidate.IntervalMs == 0 {
			c.AutoConsolidate.EveryNWrites = 100
			c.AutoConsolidate.IntervalMs = int64(6 * time.Hour / time.Millisecond)
		}
		if c.AutoConsolidate.MinClusterSize == 0 {
			c.AutoConsolidate.MinClusterSize = 3
		}
		if c.AutoConsolidate.ClusterThreshold == 0 {
			c.AutoConsolidate.ClusterThreshold = 0.78
		}
		if c.AutoConsolidate.HotDays == 0 {
			c.AutoConsolidate.HotDays = 7
		}
		if c.AutoConsolidate.WarmDays == 0 {
			c.AutoConsolidate.WarmDays = 30
		}
		if c.AutoConsolidate.ColdDays == 0 {
			c.AutoConsolidate.ColdDays = 365
		}
	}
	c.AutoConsolidate.Interval = time.Duration(c.AutoConsolidate.IntervalMs) * time.Millisecond

	if c.DeduplicateThreshold == 0 {
		c.DeduplicateThreshold = 0.92
	}
	if c.MaxMemories == 0 {
		c.MaxMemories = 10000
	}
	if c.Logger == nil {
		if c.Debug {
			l, _ := zap.NewDevelopment()
			c.Logger = l
		} else {
			l, _ := zap.NewProduction()
			c.Logger = l
		}
	}
	if c.Metrics == nil {
		c.Metrics = prometheus.NewRegistry()
	}

	c.applied = true
	return nil
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
// A missing or unreadable file is a ConfigError, not a PersistenceFailure:
// unlike the store's own file, a missing config is a caller mistake, not a
// fresh-store condition.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Reason: fmt.Sprintf("read config %s: %v", path, err)}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigError{Reason: fmt.Sprintf("parse config %s: %v", path, err)}
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
