package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/envutil"
)

const configFileEnv = "MEDI_CONFIG_FILE"

type AppConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Env     string `yaml:"env" validate:"required"`
	Port    int    `yaml:"port" validate:"gt=0,lte=65535"`
	LogMode string `yaml:"log_mode"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
}

// DSN prefers the explicit URL and otherwise assembles one from the parts.
func (c DatabaseConfig) DSN() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.Name) == "" {
		return ""
	}
	port := c.Port
	if port <= 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type LLMConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Provider         string  `yaml:"provider" validate:"oneof=anthropic openai"`
	AnthropicAPIKey  string  `yaml:"anthropic_api_key"`
	AnthropicModel   string  `yaml:"anthropic_model" validate:"required"`
	AnthropicBaseURL string  `yaml:"anthropic_base_url"`
	OpenAIAPIKey     string  `yaml:"openai_api_key"`
	OpenAIModel      string  `yaml:"openai_model" validate:"required"`
	OpenAIEmbedModel string  `yaml:"openai_embed_model" validate:"required"`
	OpenAIBaseURL    string  `yaml:"openai_base_url"`
	EmbedDim         int     `yaml:"embed_dim" validate:"gt=0"`
	MaxTokens        int     `yaml:"max_tokens" validate:"gt=0"`
	Temperature      float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds   int     `yaml:"timeout_seconds" validate:"gt=0"`
	MaxHistory       int     `yaml:"max_history" validate:"gt=0"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RAGConfig struct {
	Backend           string  `yaml:"backend" validate:"oneof=pgvector qdrant weaviate memory"`
	TopK              int     `yaml:"top_k" validate:"gt=0"`
	MinChars          int     `yaml:"min_chars" validate:"gte=1"`
	CitationThreshold float64 `yaml:"citation_threshold" validate:"gte=0,lte=1"`
	Debug             bool    `yaml:"debug"`
	QdrantURL         string  `yaml:"qdrant_url" validate:"required_if=Backend qdrant"`
	QdrantAPIKey      string  `yaml:"qdrant_api_key"`
	QdrantCollection  string  `yaml:"qdrant_collection"`
	WeaviateURL       string  `yaml:"weaviate_url" validate:"required_if=Backend weaviate"`
	WeaviateAPIKey    string  `yaml:"weaviate_api_key"`
	WeaviateClass     string  `yaml:"weaviate_class"`
}

type SummaryConfig struct {
	EveryNUserMessages int `yaml:"every_n_user_messages" validate:"gt=0"`
	Window             int `yaml:"window" validate:"gt=0"`
	MaxChars           int `yaml:"max_chars" validate:"gt=0"`
}

type ChatConfig struct {
	Serialize     string `yaml:"serialize" validate:"oneof=none local redis"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Serialize redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
}

type TwilioConfig struct {
	AccountSID      string `yaml:"account_sid"`
	AuthToken       string `yaml:"auth_token"`
	WhatsAppNumber  string `yaml:"whatsapp_number"`
	MenuTemplateSID string `yaml:"menu_template_sid"`
}

type ObservabilityConfig struct {
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	OtelEnabled     bool    `yaml:"otel_enabled"`
	OtelEndpoint    string  `yaml:"otel_endpoint"`
	OtelHeaders     string  `yaml:"otel_headers"`
	OtelInsecure    bool    `yaml:"otel_insecure"`
	OtelSampleRatio float64 `yaml:"otel_sample_ratio" validate:"gte=0,lte=1"`
}

type HTTPConfig struct {
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	RAG           RAGConfig           `yaml:"rag"`
	Summary       SummaryConfig       `yaml:"summary"`
	Chat          ChatConfig          `yaml:"chat"`
	Twilio        TwilioConfig        `yaml:"twilio"`
	Observability ObservabilityConfig `yaml:"observability"`
	HTTP          HTTPConfig          `yaml:"http"`
}

func DefaultConfig() Config {
	return Config{
		App: AppConfig{Name: "medi", Env: "dev", Port: 8080, LogMode: "development"},
		LLM: LLMConfig{
			Enabled:          true,
			Provider:         "anthropic",
			AnthropicModel:   "claude-sonnet-4-20250514",
			OpenAIModel:      "gpt-4o-mini",
			OpenAIEmbedModel: "text-embedding-3-small",
			EmbedDim:         1536,
			MaxTokens:        450,
			Temperature:      0.4,
			TimeoutSeconds:   30,
			MaxHistory:       12,
		},
		RAG: RAGConfig{
			Backend:           "pgvector",
			TopK:              5,
			MinChars:          15,
			CitationThreshold: 0.55,
			QdrantCollection:  "medi_knowledge",
			WeaviateClass:     "MediKnowledge",
		},
		Summary:       SummaryConfig{EveryNUserMessages: 6, Window: 20, MaxChars: 1200},
		Chat:          ChatConfig{Serialize: "none"},
		Observability: ObservabilityConfig{OtelSampleRatio: 1},
	}
}

// LoadConfig layers defaults, .env.local/.env, the optional YAML file named by
// MEDI_CONFIG_FILE and finally the process environment, then validates.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(".env.local", ".env"); err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(c Config) Config {
	c.App.Name = envutil.String("APP_NAME", c.App.Name)
	c.App.Env = envutil.String("ENV", c.App.Env)
	c.App.Port = envutil.Int("PORT", c.App.Port)
	c.App.LogMode = envutil.String("LOG_MODE", c.App.LogMode)

	c.Database.URL = envutil.String("DATABASE_URL", c.Database.URL)
	c.Database.Host = envutil.String("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = envutil.Int("POSTGRES_PORT", c.Database.Port)
	c.Database.User = envutil.String("POSTGRES_USER", c.Database.User)
	c.Database.Password = envutil.String("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = envutil.String("POSTGRES_NAME", c.Database.Name)
	c.Database.MaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)

	c.LLM.Enabled = envutil.Bool("USE_LLM", c.LLM.Enabled)
	c.LLM.Provider = strings.ToLower(envutil.String("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.AnthropicAPIKey = envutil.String("ANTHROPIC_API_KEY", c.LLM.AnthropicAPIKey)
	c.LLM.AnthropicModel = envutil.String("ANTHROPIC_MODEL", c.LLM.AnthropicModel)
	c.LLM.AnthropicBaseURL = envutil.String("ANTHROPIC_BASE_URL", c.LLM.AnthropicBaseURL)
	c.LLM.OpenAIAPIKey = envutil.String("OPENAI_API_KEY", c.LLM.OpenAIAPIKey)
	c.LLM.OpenAIModel = envutil.String("OPENAI_MODEL", c.LLM.OpenAIModel)
	c.LLM.OpenAIEmbedModel = envutil.String("OPENAI_EMBED_MODEL", c.LLM.OpenAIEmbedModel)
	c.LLM.OpenAIBaseURL = envutil.String("OPENAI_BASE_URL", c.LLM.OpenAIBaseURL)
	c.LLM.EmbedDim = envutil.Int("EMBED_DIM", c.LLM.EmbedDim)
	c.LLM.MaxTokens = envutil.Int("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = envutil.Float("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.TimeoutSeconds = envutil.Int("LLM_TIMEOUT_SECONDS", c.LLM.TimeoutSeconds)
	c.LLM.MaxHistory = envutil.Int("LLM_MAX_HISTORY", c.LLM.MaxHistory)

	c.RAG.Backend = strings.ToLower(envutil.String("RAG_BACKEND", c.RAG.Backend))
	c.RAG.TopK = envutil.Int("RAG_TOP_K", c.RAG.TopK)
	c.RAG.MinChars = envutil.Int("RAG_MIN_CHARS", c.RAG.MinChars)
	c.RAG.CitationThreshold = envutil.Float("RAG_CITATION_THRESHOLD", c.RAG.CitationThreshold)
	c.RAG.Debug = envutil.Bool("DEBUG_RAG", c.RAG.Debug)
	c.RAG.QdrantURL = envutil.String("QDRANT_URL", c.RAG.QdrantURL)
	c.RAG.QdrantAPIKey = envutil.String("QDRANT_API_KEY", c.RAG.QdrantAPIKey)
	c.RAG.QdrantCollection = envutil.String("QDRANT_COLLECTION", c.RAG.QdrantCollection)
	c.RAG.WeaviateURL = envutil.String("WEAVIATE_URL", c.RAG.WeaviateURL)
	c.RAG.WeaviateAPIKey = envutil.String("WEAVIATE_API_KEY", c.RAG.WeaviateAPIKey)
	c.RAG.WeaviateClass = envutil.String("WEAVIATE_CLASS", c.RAG.WeaviateClass)

	c.Summary.EveryNUserMessages = envutil.Int("SUMMARY_EVERY_N_USER_MESSAGES", c.Summary.EveryNUserMessages)
	c.Summary.Window = envutil.Int("SUMMARY_WINDOW", c.Summary.Window)
	c.Summary.MaxChars = envutil.Int("SUMMARY_MAX_CHARS", c.Summary.MaxChars)

	c.Chat.Serialize = strings.ToLower(envutil.String("CHAT_SERIALIZE", c.Chat.Serialize))
	c.Chat.RedisAddr = envutil.String("REDIS_ADDR", c.Chat.RedisAddr)
	c.Chat.RedisPassword = envutil.String("REDIS_PASSWORD", c.Chat.RedisPassword)
	c.Chat.RedisDB = envutil.Int("REDIS_DB", c.Chat.RedisDB)

	c.Twilio.AccountSID = envutil.String("TWILIO_ACCOUNT_SID", c.Twilio.AccountSID)
	c.Twilio.AuthToken = envutil.String("TWILIO_AUTH_TOKEN", c.Twilio.AuthToken)
	c.Twilio.WhatsAppNumber = envutil.String("TWILIO_WHATSAPP_NUMBER", c.Twilio.WhatsAppNumber)
	c.Twilio.MenuTemplateSID = envutil.String("MENU_TEMPLATE_SID", c.Twilio.MenuTemplateSID)

	c.Observability.MetricsEnabled = envutil.Bool("METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OtelEnabled = envutil.Bool("OTEL_ENABLED", c.Observability.OtelEnabled)
	c.Observability.OtelEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Observability.OtelEndpoint)
	c.Observability.OtelHeaders = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.Observability.OtelHeaders)
	c.Observability.OtelInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Observability.OtelInsecure)
	c.Observability.OtelSampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", c.Observability.OtelSampleRatio)

	c.HTTP.CORSAllowOrigins = envutil.List("CORS_ALLOW_ORIGINS", c.HTTP.CORSAllowOrigins)
	return c
}

var configValidate = validator.New()

func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}
