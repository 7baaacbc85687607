// Package config loads ragbot settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/search"
)

// ErrInvalidSettings is returned by Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds every tunable of the service.
type Settings struct {
	Server    ServerSettings
	Storage   StorageSettings
	Retrieval RetrievalSettings
	Models    ModelSettings
	Ingestion IngestionSettings
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	APIPrefix   string
	ListenAddr  string
	CORSOrigins []string
	Debug       bool // Run gin in debug mode
}

// StorageSettings configures the embedded database.
type StorageSettings struct {
	DataDir        string
	CollectionName string
}

// RetrievalSettings configures chunking, retrieval and context gating.
type RetrievalSettings struct {
	ChunkSize             int
	ChunkOverlap          int
	K                     int
	MinRelevanceScore     float64
	OversampleFactor      int
	BoostIncrement        float64
	VerificationThreshold float64
	ContextScoreThreshold float64
	HistoryMessages       int
}

// ModelSettings configures the embedding, chat and vision models.
type ModelSettings struct {
	EmbeddingHost  string
	EmbeddingModel string
	ChatHost       string
	ChatModel      string
	APIKey         string
	VisionAPIKey   string
	VisionHost     string
	VisionModel    string
	Temperature    float64
	MaxTokens      int
	TopP           float64
	SystemPrompt   string
}

// IngestionSettings configures document ingestion.
type IngestionSettings struct {
	Workers           int
	EmbedBatchSize    int
	EmbeddingCache    int
	EmbeddingCacheTTL time.Duration
	URLFetchTimeout   time.Duration
}

// Load reads settings from the environment after loading envFilePath, if
// given. A missing env file is not an error.
func Load(envFilePath string) (*Settings, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	defaults := ai.DefaultConfig()

	s := &Settings{
		Server: ServerSettings{
			APIPrefix:   getEnv("API_PREFIX", "/api"),
			ListenAddr:  getEnv("LISTEN_ADDR", ":8000"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
			Debug:       getEnvAsBool("DEBUG", false),
		},
		Storage: StorageSettings{
			DataDir:        getEnv("DATA_DIR", "./data"),
			CollectionName: getEnv("COLLECTION_NAME", "documents"),
		},
		Retrieval: RetrievalSettings{
			ChunkSize:             getEnvAsInt("CHUNK_SIZE", 800),
			ChunkOverlap:          getEnvAsInt("CHUNK_OVERLAP", 200),
			K:                     getEnvAsInt("RETRIEVAL_K", 4),
			MinRelevanceScore:     getEnvAsFloat("MIN_RELEVANCE_SCORE", 0.20),
			OversampleFactor:      getEnvAsInt("OVERSAMPLE_FACTOR", 3),
			BoostIncrement:        getEnvAsFloat("BOOST_INCREMENT", 0.05),
			VerificationThreshold: getEnvAsFloat("VERIFICATION_THRESHOLD", 0.2),
			ContextScoreThreshold: getEnvAsFloat("CONTEXT_SCORE_THRESHOLD", 0.4),
			HistoryMessages:       getEnvAsInt("HISTORY_MESSAGES", 6),
		},
		Models: ModelSettings{
			EmbeddingHost:  getEnv("EMBEDDING_HOST", defaults.EmbeddingHost),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", defaults.EmbeddingModel),
			ChatHost:       getEnv("CHAT_HOST", defaults.ChatHost),
			ChatModel:      getEnv("CHAT_MODEL", defaults.ChatModel),
			APIKey:         getEnv("OPENAI_API_KEY", "none"),
			VisionAPIKey:   getEnv("GLM_API_KEY", ""),
			VisionHost:     getEnv("VISION_HOST", defaults.VisionHost),
			VisionModel:    getEnv("GLM_VISION_MODEL", defaults.VisionModel),
			Temperature:    getEnvAsFloat("TEMPERATURE", defaults.Temperature),
			MaxTokens:      getEnvAsInt("MAX_TOKENS", defaults.MaxTokens),
			TopP:           getEnvAsFloat("TOP_P", defaults.TopP),
			SystemPrompt:   getEnv("SYSTEM_PROMPT", ""),
		},
		Ingestion: IngestionSettings{
			Workers:           getEnvAsInt("INGEST_WORKERS", max(runtime.NumCPU()/2, 1)),
			EmbedBatchSize:    getEnvAsInt("EMBED_BATCH_SIZE", 32),
			EmbeddingCache:    getEnvAsInt("EMBEDDING_CACHE_SIZE", 0),
			EmbeddingCacheTTL: getEnvAsDuration("EMBEDDING_CACHE_TTL", 10*time.Minute),
			URLFetchTimeout:   getEnvAsDuration("URL_FETCH_TIMEOUT", 30*time.Second),
		},
	}

	return s, nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	r := s.Retrieval
	switch {
	case r.ChunkSize <= 0:
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidSettings)
	case r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize:
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidSettings)
	case r.K <= 0 || r.K > search.MaxK:
		return fmt.Errorf("%w: RETRIEVAL_K must be in [1, %d]", ErrInvalidSettings, search.MaxK)
	case r.MinRelevanceScore < 0 || r.MinRelevanceScore > 1:
		return fmt.Errorf("%w: MIN_RELEVANCE_SCORE must be in [0, 1]", ErrInvalidSettings)
	case r.OversampleFactor <= 0 || r.OversampleFactor > search.MaxOversampleFactor:
		return fmt.Errorf("%w: OVERSAMPLE_FACTOR must be in [1, %d]", ErrInvalidSettings, search.MaxOversampleFactor)
	case r.VerificationThreshold < 0 || r.VerificationThreshold > 1:
		return fmt.Errorf("%w: VERIFICATION_THRESHOLD must be in [0, 1]", ErrInvalidSettings)
	case r.HistoryMessages < 0:
		return fmt.Errorf("%w: HISTORY_MESSAGES must not be negative", ErrInvalidSettings)
	case s.Ingestion.Workers <= 0:
		return fmt.Errorf("%w: INGEST_WORKERS must be positive", ErrInvalidSettings)
	case s.Ingestion.EmbedBatchSize <= 0:
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", ErrInvalidSettings)
	case s.Storage.CollectionName == "":
		return fmt.Errorf("%w: COLLECTION_NAME is required", ErrInvalidSettings)
	}
	if err := s.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// AIConfig builds the model configuration.
func (s *Settings) AIConfig() *ai.Config {
	m := s.Models
	return ai.NewConfig(
		ai.WithEmbeddingHost(m.EmbeddingHost),
		ai.WithEmbeddingModel(m.EmbeddingModel),
		ai.WithChatHost(m.ChatHost),
		ai.WithChatModel(m.ChatModel),
		ai.WithAPIKey(m.APIKey),
		ai.WithVision(m.VisionHost, m.VisionModel, m.VisionAPIKey),
		ai.WithGeneration(m.Temperature, m.MaxTokens, m.TopP),
		ai.WithSystemPrompt(m.SystemPrompt),
	)
}

// KeywordConfig builds the lexical rerank and verification settings.
func (s *Settings) KeywordConfig() search.KeywordConfig {
	cfg := search.DefaultKeywordConfig()
	cfg.BoostIncrement = s.Retrieval.BoostIncrement
	cfg.VerificationThreshold = s.Retrieval.VerificationThreshold
	return cfg
}

// getEnv returns the variable, or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
