package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ragbench/genread/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Wiki      WikiConfig      `yaml:"wiki" mapstructure:"wiki"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Prompt    PromptConfig    `yaml:"prompt" mapstructure:"prompt"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// OpenAIConfig holds completion API settings.
type OpenAIConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Model     string  `yaml:"model" mapstructure:"model"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec, 0 = unlimited
}

// WikiConfig holds encyclopedia API settings.
type WikiConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// InferenceConfig configures the batch orchestrator and retry budgets.
type InferenceConfig struct {
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	NumSequences       int     `yaml:"num_sequences" mapstructure:"num_sequences"`
	Temperature        float64 `yaml:"temperature" mapstructure:"temperature"`
	CompletionRetries  int     `yaml:"completion_retries" mapstructure:"completion_retries"`
	FetchRetries       int     `yaml:"fetch_retries" mapstructure:"fetch_retries"`
	RetryDelaySecs     int     `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	ProgressEverySecs  int     `yaml:"progress_every_secs" mapstructure:"progress_every_secs"`
}

// RetryDelay returns the fixed inter-attempt delay.
func (c InferenceConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// PromptConfig configures template loading and rendering.
type PromptConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
	// PlaceholderPolicy: verbatim, blank, or error.
	PlaceholderPolicy string `yaml:"placeholder_policy" mapstructure:"placeholder_policy"`
}

// DataConfig configures dataset and output file layout.
type DataConfig struct {
	InputDir  string `yaml:"input_dir" mapstructure:"input_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// StoreConfig configures the run registry backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GENREAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.model", "text-davinci-003")
	v.SetDefault("openai.rate_limit", 0)
	v.SetDefault("wiki.base_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wiki.timeout_secs", 20)
	v.SetDefault("inference.batch_size", 5)
	v.SetDefault("inference.num_sequences", 1)
	v.SetDefault("inference.temperature", 0)
	v.SetDefault("inference.completion_retries", 50)
	v.SetDefault("inference.fetch_retries", 3)
	v.SetDefault("inference.retry_delay_secs", 10)
	v.SetDefault("inference.progress_every_secs", 30)
	v.SetDefault("prompt.dir", "inprompts")
	v.SetDefault("prompt.placeholder_policy", "verbatim")
	v.SetDefault("data.input_dir", "indatasets")
	v.SetDefault("data.output_dir", ".")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "genread.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
