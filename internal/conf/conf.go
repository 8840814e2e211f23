package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Generation backend configuration
	LLM LLMConfig

	// Web search configuration
	Search SearchConfig

	// Page rendering configuration
	Page PageConfig

	// Prompt file locations
	Prompt PromptFileConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig

	// Bot behaviour
	Bot BotConfig

	// Summarization limits
	Summary usecase.SummarizeOptions

	// Reply ledger database
	LedgerDBPath string

	// Admin API port
	APIPort int

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// LLMConfig selects and configures the generation backend
type LLMConfig struct {
	Provider    string // ollama, openai, gemini
	Temperature float32

	OllamaURL    string
	OllamaAPIKey string
	OllamaModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string
}

// SearchConfig contains web search configuration
type SearchConfig struct {
	BraveAPIKey string
	MaxResults  int
	Region      string
	Recency     string
}

// PageConfig contains page rendering configuration
type PageConfig struct {
	Renderer   string // browser, http
	ControlURL string // existing Chrome DevTools endpoint
	BrowserBin string
	Timeout    time.Duration
}

// PromptFileConfig contains hot-reloaded prompt files
type PromptFileConfig struct {
	SystemPromptPath string
	KeywordsPath     string
}

// BotConfig is the explicit router configuration
type BotConfig struct {
	HistoryLimit      int
	PollInterval      time.Duration
	GenerationTimeout time.Duration
	ClassifierEnabled bool
}

// Load reads .env (if present) then the environment
func Load() *Config {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Ledger DB path
	ledgerDBPath := os.Getenv("LEDGER_DB_PATH")
	if ledgerDBPath == "" {
		homeDir, _ := os.UserHomeDir()
		ledgerDBPath = filepath.Join(homeDir, ".hobojuki", "ledger.db")
	}

	// Load prompts from YAML
	promptsConfig, err := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))
	if err != nil {
		promptsConfig = DefaultPromptsConfig()
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(envOr("LLM_PROVIDER", "ollama")),
			Temperature:   float32(envFloat("LLM_TEMPERATURE", 0.7)),
			OllamaURL:     strings.TrimRight(os.Getenv("OLLAMA_URL"), "/"),
			OllamaAPIKey:  os.Getenv("OLLAMA_API_KEY"),
			OllamaModel:   envOr("OLLAMA_MODEL", "gemma2:9b"),
			OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
			OpenAIModel:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
			GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
			GeminiModel:   envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Search: SearchConfig{
			BraveAPIKey: os.Getenv("BRAVE_API_KEY"),
			MaxResults:  envInt("SEARCH_MAX_RESULTS", 3),
			Region:      envOr("SEARCH_REGION", "jp-jp"),
			Recency:     os.Getenv("SEARCH_RECENCY"),
		},
		Page: PageConfig{
			Renderer:   strings.ToLower(envOr("PAGE_RENDERER", "browser")),
			ControlURL: os.Getenv("BROWSER_CONTROL_URL"),
			BrowserBin: os.Getenv("BROWSER_BIN"),
			Timeout:    envDuration("PAGE_TIMEOUT", 30*time.Second),
		},
		Prompt: PromptFileConfig{
			SystemPromptPath: envOr("SYSTEM_PROMPT_PATH", "/prompts/system_prompt.md"),
			KeywordsPath:     envOr("PROMPT_KEYWORDS_PATH", "/prompts/system_prompt_keywords.txt"),
		},
		Prompts: promptsConfig,
		Bot: BotConfig{
			HistoryLimit:      envInt("HISTORY_LIMIT", 10),
			PollInterval:      envDuration("POLL_INTERVAL", time.Minute),
			GenerationTimeout: envDuration("GENERATION_TIMEOUT", 2*time.Minute),
			ClassifierEnabled: envOr("CLASSIFIER_ENABLED", "true") == "true",
		},
		Summary: usecase.SummarizeOptions{
			ReadMaxChars: envInt("SUMMARY_READ_MAX_CHARS", usecase.DefaultSummarizeOptions.ReadMaxChars),
			ChunkSize:    envInt("SUMMARY_CHUNK_SIZE", usecase.DefaultSummarizeOptions.ChunkSize),
			MaxChars:     envInt("SUMMARY_MAX_CHARS", usecase.DefaultSummarizeOptions.MaxChars),
		},
		LedgerDBPath: ledgerDBPath,
		APIPort:      envInt("API_PORT", 9876),
		Debug:        os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration needed to serve chat
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return c.ValidateBackend()
}

// ValidateBackend validates only the generation backend (CLI commands need no transport)
func (c *Config) ValidateBackend() error {
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.OllamaURL == "" {
			return &ConfigError{Field: "OLLAMA_URL", Message: "required for ollama provider"}
		}
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return &ConfigError{Field: "OPENAI_API_KEY", Message: "required for openai provider"}
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return &ConfigError{Field: "GEMINI_API_KEY", Message: "required for gemini provider"}
		}
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Message: "must be one of ollama, openai, gemini"}
	}
	if c.Bot.PollInterval <= 0 {
		return &ConfigError{Field: "POLL_INTERVAL", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envOr(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 32); err == nil {
			return parsed
		}
	}
	return def
}

// envDuration accepts Go durations ("90s") or plain seconds ("90")
func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
