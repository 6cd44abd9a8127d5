package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is loaded once at startup and treated as read-only afterwards.
// Every component receives the values it needs explicitly; nothing reads
// viper after Load returns.
type Config struct {
	DatasetRoot       string        `mapstructure:"dataset_root"`
	Driver            string        `mapstructure:"driver"` // "playwright" or "chromedp"
	Headless          bool          `mapstructure:"headless"`
	SlowMo            time.Duration `mapstructure:"slow_mo"`
	PersistentContext bool          `mapstructure:"persistent_context"`
	ContextDir        string        `mapstructure:"persistent_context_dir"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`

	LLM LLMConfig `mapstructure:"llm"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // "openai" or "none"
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("dataset_root", "dataset")
	v.SetDefault("driver", "playwright")
	v.SetDefault("headless", false)
	v.SetDefault("slow_mo", 300*time.Millisecond)
	v.SetDefault("persistent_context", true)
	v.SetDefault("persistent_context_dir", ".browser_context")
	v.SetDefault("navigation_timeout", 30*time.Second)
	v.SetDefault("task_timeout", 15*time.Minute)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)

	// Missing config file is fine, defaults cover everything.
	if _, statErr := os.Stat(path); statErr == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Driver != "playwright" && cfg.Driver != "chromedp" {
		return nil, fmt.Errorf("unknown driver %q (want playwright or chromedp)", cfg.Driver)
	}

	return &cfg, nil
}
