// Package config defines the narrative engine's process configuration,
// parsed from the environment per §6.
package config

import (
	platformconfig "github.com/louisbranch/narrative-engine/internal/platform/config"
)

// Config holds every externally-configurable option the engine
// recognizes (§6's "Configuration" table).
type Config struct {
	DBPath              string `env:"DB_PATH" envDefault:"./narrative.db"`
	LLMAPIKey           string `env:"LLM_API_KEY,required"`
	LLMBaseURL          string `env:"LLM_BASE_URL"`
	LLMModel            string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	RAGIndexBaseDir     string `env:"RAG_INDEX_BASE_DIR"`
	DefaultStoryID      string `env:"DEFAULT_STORY_ID"`
	TurnTimeoutSeconds  int    `env:"TURN_TIMEOUT_SECONDS" envDefault:"30"`
	ExtractorRetryCount int    `env:"EXTRACTOR_RETRY_COUNT" envDefault:"1"`
}

// Load parses Config from the environment. RAGIndexBaseDir crosses the
// documented external boundary but has no in-core consumer (§1 places
// retrieval out of scope) -- it is retained on the struct only so an
// external RAG collaborator sees one consistent configuration surface.
func Load() (Config, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
