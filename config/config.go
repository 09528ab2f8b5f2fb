// Package config reads the environment shared by the API server, the loader
// and the scraper.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"scolaire/types"
)

type Postgres struct {
	Host   string
	Port   int
	User   string
	Pass   string
	DBName string
}

func (p Postgres) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", p.Host, p.Port, p.User, p.Pass, p.DBName)
}

type Ollama struct {
	EmbeddingURL   string
	EmbeddingModel string
	LLMURL         string
	LLMModel       string
	Timeout        time.Duration
}

type RAG struct {
	TopK                int
	SimilarityThreshold float64
	MaxContextTokens    int
}

type Config struct {
	ServerAddr  string
	FrontendDir string
	CorpusDir   string
	RawDir      string
	Postgres    Postgres
	Ollama      Ollama
	RAG         RAG
	Loader      types.Config
}

// Load reads envFiles (".env" when none is given) and then the environment.
// Missing files are not an error: variables may come from the environment alone.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Printf("[CONFIG] no env file loaded (%v), using environment only", err)
	}

	return &Config{
		ServerAddr:  getEnv("SERVER_ADDR", ":8000"),
		FrontendDir: getEnv("FRONTEND_DIR", "./frontend"),
		CorpusDir:   getEnv("CORPUS_DIR", "data/processed"),
		RawDir:      getEnv("RAW_DIR", "data/raw"),
		Postgres: Postgres{
			Host:   getEnv("PG_HOST", "localhost"),
			Port:   getInt("PG_PORT", 5432),
			User:   getEnv("PG_USER", "postgres"),
			Pass:   getEnv("PG_PASS", "postgres"),
			DBName: getEnv("PG_DB_NAME", "scolaire"),
		},
		Ollama: Ollama{
			EmbeddingURL:   getEnv("OLLAMA_EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
			EmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMURL:         getEnv("LLM_URL", "http://localhost:11434/api/generate"),
			LLMModel:       getEnv("LLM_MODEL", "llama3.1"),
			Timeout:        getDuration("LLM_TIMEOUT", 2*time.Minute),
		},
		RAG: RAG{
			TopK:                getInt("RAG_TOP_K", 5),
			SimilarityThreshold: getFloat("RAG_SIMILARITY_THRESHOLD", 0.3),
			MaxContextTokens:    getInt("RAG_MAX_CONTEXT_TOKENS", 3000),
		},
		Loader: types.Config{
			MonitoringTime: getDuration("LOADER_MONITORING_TIME", 5*time.Second),
			SourceDir:      getEnv("LOADER_SOURCE_DIR", "data/user_pdfs"),
			ArchiveDir:     getEnv("LOADER_ARCHIVE_DIR", "data/user_pdfs/archive"),
			BadDir:         getEnv("LOADER_BAD_DIR", "data/user_pdfs/bad"),
			DoclingURL:     getEnv("DOCLING_URL", "http://localhost:5001/v1/convert/file"),
			CropTop:        getFloat("LOADER_CROP_TOP", 0),
			CropBottom:     getFloat("LOADER_CROP_BOTTOM", 0),
		},
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %v", key, v, def)
		return def
	}
	return f
}

// getDuration accepts Go durations ("90s") or a plain number of seconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("[CONFIG] invalid %s=%q, using %v", key, v, def)
	return def
}
