package config

import (
	"fmt"
	"os"
)

// Secret environment variable names. Never stored on disk or logged; the config
// file only ever carries ${VAR} placeholders per LoadConfig's substitution pass.
const (
	EnvVCSToken      = "REMEDIATOR_VCS_TOKEN"
	EnvLLMAPIKey     = "REMEDIATOR_LLM_API_KEY"
	EnvEmbeddingKey  = "REMEDIATOR_EMBEDDING_API_KEY"
	EnvNotifierToken = "REMEDIATOR_NOTIFIER_TOKEN"
	EnvStorePassword = "REMEDIATOR_STORE_PASSWORD"
)

// GetVCSToken returns the source-control hosting API token.
func GetVCSToken() (string, error) {
	return requireEnv(EnvVCSToken)
}

// GetLLMAPIKey returns the API key for the configured LLM provider.
func GetLLMAPIKey() (string, error) {
	return requireEnv(EnvLLMAPIKey)
}

// GetEmbeddingAPIKey returns the API key for the embedding provider, if PatternMemory
// is configured to use a remote embedding service rather than the hashed-token fallback.
func GetEmbeddingAPIKey() string {
	return os.Getenv(EnvEmbeddingKey)
}

// GetNotifierToken returns the outbound chat notifier's bot/webhook token.
func GetNotifierToken() (string, error) {
	return requireEnv(EnvNotifierToken)
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required secret %s is not set in the environment", key)
	}
	return v, nil
}
