package dispatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration is a time.Duration that unmarshals from YAML strings like "15ms".
type duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// ConfigBundle is the YAML representation of an InferenceConfig. Scalar
// fields are pointers so an omitted key is distinguishable from an explicit
// zero, letting CLI flags override only what the file left unset.
type ConfigBundle struct {
	Generation struct {
		Temperature       *float64 `yaml:"temperature"`
		TopP              *float64 `yaml:"top_p"`
		TopK              *int     `yaml:"top_k"`
		MaxTokens         *int     `yaml:"max_tokens"`
		RepetitionPenalty *float64 `yaml:"repetition_penalty"`
		Mirostat          *bool    `yaml:"mirostat"`
		MirostatTau       *float64 `yaml:"mirostat_tau"`
		MirostatEta       *float64 `yaml:"mirostat_eta"`
	} `yaml:"generation"`
	Resources struct {
		ContextWindow *int `yaml:"context_window"`
		Parallel      *int `yaml:"parallel"`
		GPULayers     *int `yaml:"gpu_layers"`
	} `yaml:"resources"`
	Dispatcher struct {
		Timeout       *duration `yaml:"timeout"`
		CacheEnabled  *bool     `yaml:"cache_enabled"`
		CacheCapacity *int      `yaml:"cache_capacity"`
		CacheTTL      *duration `yaml:"cache_ttl"`
		BatchEnabled  *bool     `yaml:"batch_enabled"`
		BatchWidth    *int      `yaml:"batch_width"`
		BatchWindow   *duration `yaml:"batch_window"`
	} `yaml:"dispatcher"`
}

// LoadConfigBundle reads and parses a YAML config bundle from path.
func LoadConfigBundle(path string) (*ConfigBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var bundle ConfigBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &bundle, nil
}

// Apply overlays the bundle's set fields onto base and returns the merged
// config. Unset (nil) fields keep the base value.
func (b *ConfigBundle) Apply(base InferenceConfig) InferenceConfig {
	cfg := base
	if b.Generation.Temperature != nil {
		cfg.Generation.Temperature = *b.Generation.Temperature
	}
	if b.Generation.TopP != nil {
		cfg.Generation.TopP = *b.Generation.TopP
	}
	if b.Generation.TopK != nil {
		cfg.Generation.TopK = *b.Generation.TopK
	}
	if b.Generation.MaxTokens != nil {
		cfg.Generation.MaxTokens = *b.Generation.MaxTokens
	}
	if b.Generation.RepetitionPenalty != nil {
		cfg.Generation.RepetitionPenalty = *b.Generation.RepetitionPenalty
	}
	if b.Generation.Mirostat != nil {
		cfg.Generation.Mirostat = *b.Generation.Mirostat
	}
	if b.Generation.MirostatTau != nil {
		cfg.Generation.MirostatTau = *b.Generation.MirostatTau
	}
	if b.Generation.MirostatEta != nil {
		cfg.Generation.MirostatEta = *b.Generation.MirostatEta
	}
	if b.Resources.ContextWindow != nil {
		cfg.Resources.ContextWindow = *b.Resources.ContextWindow
	}
	if b.Resources.Parallel != nil {
		cfg.Resources.Parallel = *b.Resources.Parallel
	}
	if b.Resources.GPULayers != nil {
		cfg.Resources.GPULayers = *b.Resources.GPULayers
	}
	if b.Dispatcher.Timeout != nil {
		cfg.Dispatcher.Timeout = time.Duration(*b.Dispatcher.Timeout)
	}
	if b.Dispatcher.CacheEnabled != nil {
		cfg.Dispatcher.CacheEnabled = *b.Dispatcher.CacheEnabled
	}
	if b.Dispatcher.CacheCapacity != nil {
		cfg.Dispatcher.CacheCapacity = *b.Dispatcher.CacheCapacity
	}
	if b.Dispatcher.CacheTTL != nil {
		cfg.Dispatcher.CacheTTL = time.Duration(*b.Dispatcher.CacheTTL)
	}
	if b.Dispatcher.BatchEnabled != nil {
		cfg.Dispatcher.BatchEnabled = *b.Dispatcher.BatchEnabled
	}
	if b.Dispatcher.BatchWidth != nil {
		cfg.Dispatcher.BatchWidth = *b.Dispatcher.BatchWidth
	}
	if b.Dispatcher.BatchWindow != nil {
		cfg.Dispatcher.BatchWindow = time.Duration(*b.Dispatcher.BatchWindow)
	}
	return cfg
}
