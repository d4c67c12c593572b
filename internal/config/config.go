package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// Upload surface
	MaxFileSize    int64
	FileStorageDir string

	// Per IP+endpoint HTTP rate limit
	RateLimitReqs   int
	RateLimitWindow int // seconds

	// Redis (asynq broker + status cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Chunker tuning
	ChunkTargetSize int
	ChunkOverlap    int
	MinChunkSize    int
	CompressChunks  bool

	// Embeddings
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g. "text-embedding-004"
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIEmbeddingsModel string
	EmbedBatchSize        int
	EmbedMaxRetries       int
	EmbedRetryBaseDelay   time.Duration
	EmbedRateLimitRPM     int
	EmbedTimeout          time.Duration

	// Vector search
	VectorSearchEnabled bool // Atlas $vectorSearch; otherwise in-process scan
	VectorIndexName     string
	VectorDimensions    int

	// Hybrid retrieval
	SimilarityThreshold float64
	OversampleFactor    int
	VectorWeight        float64
	KeywordBoost        float64

	// Orchestration
	WorkerConcurrency        int
	PipelineTimeout          time.Duration
	StaleProcessingThreshold time.Duration
	ReconcileInterval        time.Duration
	StoreWriteRetries        int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/document_rag"),
		DBName:   getEnv("DB_NAME", "document_rag"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQS", 120),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ChunkTargetSize: getEnvInt("CHUNK_TARGET_SIZE", 1000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 200),
		MinChunkSize:    getEnvInt("MIN_CHUNK_SIZE", 100),
		CompressChunks:  getEnvBool("COMPRESS_CHUNKS", false),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbedBatchSize:        getEnvInt("EMBED_BATCH_SIZE", 100),
		EmbedMaxRetries:       getEnvInt("EMBED_MAX_RETRIES", 3),
		EmbedRetryBaseDelay:   getEnvDuration("EMBED_RETRY_BASE_DELAY", 500*time.Millisecond),
		EmbedRateLimitRPM:     getEnvInt("EMBED_RATE_LIMIT_RPM", 600),
		EmbedTimeout:          getEnvDuration("EMBED_TIMEOUT", 60*time.Second),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "chunk_vectors_cosine"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),

		SimilarityThreshold: getEnvFloat64("SIMILARITY_THRESHOLD", 0.7),
		OversampleFactor:    getEnvInt("OVERSAMPLE_FACTOR", 4),
		VectorWeight:        getEnvFloat64("VECTOR_WEIGHT", 0.8),
		KeywordBoost:        getEnvFloat64("KEYWORD_BOOST", 0.2),

		WorkerConcurrency:        getEnvInt("WORKER_CONCURRENCY", 10),
		PipelineTimeout:          getEnvDuration("PIPELINE_TIMEOUT", 10*time.Minute),
		StaleProcessingThreshold: getEnvDuration("STALE_PROCESSING_THRESHOLD", 30*time.Minute),
		ReconcileInterval:        getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		StoreWriteRetries:        getEnvInt("STORE_WRITE_RETRIES", 3),
	}

	switch cfg.EmbeddingsProvider {
	case "google":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required - set it in .env file")
		}
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}

	if cfg.OversampleFactor < 1 {
		cfg.OversampleFactor = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
