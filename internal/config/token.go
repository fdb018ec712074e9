package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

const apiTokenAccount = "api_token"

// GetAPIToken returns the bearer token for the management API. SPARK_API_TOKEN
// wins when set; otherwise the token is read from the secret store and
// generated there on first use.
func GetAPIToken() (string, error) {
	return apiToken(keychainStore{})
}

func apiToken(kc secretStore) (string, error) {
	if tok := os.Getenv("SPARK_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(service, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	tok := uuid.NewString()
	if err := kc.Set(service, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
