package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dqrules/internal/errors"
)

// Generator modes
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderHeuristic = "heuristic"
)

// Config represents the complete application configuration
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset"`
	Inputs     InputConfig      `yaml:"inputs"`
	Selection  SelectionConfig  `yaml:"selection"`
	AI         AIConfig         `yaml:"ai"`
	Validation ValidationConfig `yaml:"validation"`
	Refinement RefinementConfig `yaml:"refinement"`
	Output     OutputConfig     `yaml:"output"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
}

// DatasetConfig overrides values otherwise inferred from the inputs
type DatasetConfig struct {
	Name        string `yaml:"name"`
	ParentClass string `yaml:"parent_class"`
}

// InputConfig holds input file locations
type InputConfig struct {
	ProfilingPath string `yaml:"profiling_path" validate:"required"`
	SamplePath    string `yaml:"sample_path"`
	SampleSheet   string `yaml:"sample_sheet"`
	TaxonomyPath  string `yaml:"taxonomy_path"`
}

// SelectionConfig controls which attributes receive rules
type SelectionConfig struct {
	PriorityAttributes []string `yaml:"priority_attributes"`
	MaxAttributes      int      `yaml:"max_attributes" validate:"gte=0"`
}

// AIConfig holds generator settings
type AIConfig struct {
	Provider         string        `yaml:"provider" validate:"required,oneof=openai gemini heuristic"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	Temperature      float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int           `yaml:"max_tokens" validate:"gt=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries       int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base" validate:"gte=0"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max" validate:"gte=0"`
	PromptsDir       string        `yaml:"prompts_dir"`
}

// CallBudget bounds one generation call across every retry: each attempt may use
// the full per-attempt timeout and each retry may wait the maximum backoff.
func (c AIConfig) CallBudget() time.Duration {
	retries := time.Duration(c.MaxRetries)
	return c.Timeout*(retries+1) + c.RetryBackoffMax*retries
}

// ValidationConfig controls sample evaluation
type ValidationConfig struct {
	SampleSize    int  `yaml:"sample_size" validate:"gt=0"`
	SQLCrossCheck bool `yaml:"sql_cross_check"`
}

// RefinementConfig controls threshold adjustment
type RefinementConfig struct {
	AdjustmentMultiplier float64 `yaml:"adjustment_multiplier" validate:"gte=1"`
	AdjustmentMargin     float64 `yaml:"adjustment_margin" validate:"gte=1"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	Dir          string `yaml:"dir" validate:"required"`
	JSONFile     string `yaml:"json_file" validate:"required"`
	ExcelFile    string `yaml:"excel_file"`
	MarkdownFile string `yaml:"markdown_file"`
	HTMLFile     string `yaml:"html_file"`
}

// DatabaseConfig holds run store settings; an empty driver disables the store
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=postgres sqlite"`
	URL    string `yaml:"url" validate:"required_with=Driver"`
}

// ServerConfig holds read API settings
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Inputs: InputConfig{
			ProfilingPath: "data/profiling.json",
		},
		Selection: SelectionConfig{
			MaxAttributes: 15,
		},
		AI: AIConfig{
			Provider:         ProviderOpenAI,
			Model:            "gpt-4o",
			Temperature:      0.1,
			MaxTokens:        8000,
			Timeout:          120 * time.Second,
			MaxRetries:       3,
			RetryBackoffBase: time.Second,
			RetryBackoffMax:  30 * time.Second,
		},
		Validation: ValidationConfig{
			SampleSize:    100,
			SQLCrossCheck: true,
		},
		Refinement: RefinementConfig{
			AdjustmentMultiplier: 1.5,
			AdjustmentMargin:     1.1,
		},
		Output: OutputConfig{
			Dir:          "output",
			JSONFile:     "dq_rules.json",
			ExcelFile:    "dq_rules.xlsx",
			MarkdownFile: "dq_rules.md",
			HTMLFile:     "dq_rules.html",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file and the environment,
// then validates it. A .env file in the working directory is honoured when present.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadForStore loads configuration for commands that never call a generator
// (serve, migrate); provider credentials are not required.
func LoadForStore(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, generator bool) (*Config, error) {
	_ = godotenv.Load()

	config := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, &config); err != nil {
			return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to parse config file %s", path)
		}
	}

	applyEnv(&config)

	if err := validateConfig(&config, generator); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return &config, nil
}

func applyEnv(config *Config) {
	config.Dataset.Name = getEnvOrDefault("DATASET_NAME", config.Dataset.Name)
	config.Dataset.ParentClass = getEnvOrDefault("PARENT_CLASS", config.Dataset.ParentClass)

	config.Inputs.ProfilingPath = getEnvOrDefault("PROFILING_PATH", config.Inputs.ProfilingPath)
	config.Inputs.SamplePath = getEnvOrDefault("RAW_DATA_PATH", config.Inputs.SamplePath)
	config.Inputs.SampleSheet = getEnvOrDefault("RAW_DATA_SHEET", config.Inputs.SampleSheet)
	config.Inputs.TaxonomyPath = getEnvOrDefault("SCHEMA_PATH", config.Inputs.TaxonomyPath)

	if list := os.Getenv("PRIORITY_ATTRIBUTES"); list != "" {
		config.Selection.PriorityAttributes = splitList(list)
	}
	config.Selection.MaxAttributes = getEnvIntOrDefault("MAX_ATTRIBUTES", config.Selection.MaxAttributes)

	config.AI.Provider = strings.ToLower(getEnvOrDefault("LLM_PROVIDER", config.AI.Provider))
	config.AI.APIKey = getEnvOrDefault("LLM_API_KEY", config.AI.APIKey)
	switch config.AI.Provider {
	case ProviderOpenAI:
		config.AI.APIKey = getEnvOrDefault("OPENAI_API_KEY", config.AI.APIKey)
	case ProviderGemini:
		config.AI.APIKey = getEnvOrDefault("GEMINI_API_KEY", config.AI.APIKey)
	}
	config.AI.Model = getEnvOrDefault("LLM_MODEL", config.AI.Model)
	config.AI.BaseURL = getEnvOrDefault("LLM_BASE_URL", config.AI.BaseURL)
	config.AI.Temperature = getEnvFloatOrDefault("TEMPERATURE", config.AI.Temperature)
	config.AI.MaxTokens = getEnvIntOrDefault("MAX_TOKENS", config.AI.MaxTokens)
	config.AI.Timeout = getEnvDurationOrDefault("LLM_TIMEOUT", config.AI.Timeout)
	config.AI.MaxRetries = getEnvIntOrDefault("LLM_MAX_RETRIES", config.AI.MaxRetries)
	config.AI.PromptsDir = getEnvOrDefault("PROMPTS_DIR", config.AI.PromptsDir)

	config.Validation.SampleSize = getEnvIntOrDefault("SAMPLE_SIZE", config.Validation.SampleSize)
	config.Validation.SQLCrossCheck = getEnvBoolOrDefault("SQL_CROSS_CHECK", config.Validation.SQLCrossCheck)

	config.Refinement.AdjustmentMultiplier = getEnvFloatOrDefault("ADJUSTMENT_MULTIPLIER", config.Refinement.AdjustmentMultiplier)
	config.Refinement.AdjustmentMargin = getEnvFloatOrDefault("ADJUSTMENT_MARGIN", config.Refinement.AdjustmentMargin)

	config.Output.Dir = getEnvOrDefault("OUTPUT_DIR", config.Output.Dir)

	config.Database.Driver = strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", config.Database.Driver))
	config.Database.URL = getEnvOrDefault("DATABASE_URL", config.Database.URL)

	config.Server.Addr = getEnvOrDefault("SERVER_ADDR", config.Server.Addr)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(config *Config, generator bool) error {
	if err := validate.Struct(config); err != nil {
		return errors.ConfigInvalid(describeValidation(err))
	}
	if generator && config.AI.Provider != ProviderHeuristic {
		if config.AI.APIKey == "" {
			return errors.ConfigInvalid(fmt.Sprintf("an API key is required for provider %q", config.AI.Provider))
		}
		if config.AI.Model == "" {
			return errors.ConfigInvalid("a model is required for LLM providers")
		}
	}
	if config.AI.RetryBackoffMax > 0 && config.AI.RetryBackoffMax < config.AI.RetryBackoffBase {
		return errors.ConfigInvalid("retry_backoff_max must not be lower than retry_backoff_base")
	}
	return nil
}

func describeValidation(err error) string {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
