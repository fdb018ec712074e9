package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// service is the keychain service (and secrets.json section) spark uses.
const service = "spark"

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Generator GeneratorConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Publish   PublishConfig
	GitHub    GitHubConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type GeneratorConfig struct {
	Backend string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type PublishConfig struct {
	Strategy     string
	ExportDir    string
	RecheckDelay time.Duration
	ProbeTimeout time.Duration
}

type GitHubConfig struct {
	APIURL string
	Branch string
	Token  string
}

var (
	StorageBackends   = []string{"sqlite", "redis", "memory"}
	GeneratorBackends = []string{"ollama", "openai", "stub"}
	// An empty strategy picks github when a credential is stored, local otherwise.
	PublishStrategies = []string{"", "github", "local", "export"}
	LogLevels         = []string{"debug", "info", "warn", "error"}
)

// enums maps keys with a closed value set to that set.
var enums = map[string][]string{
	"storage.backend":   StorageBackends,
	"generator.backend": GeneratorBackends,
	"publish.strategy":  PublishStrategies,
	"log.level":         LogLevels,
}

func defaults() Config {
	return Config{
		Server:    ServerConfig{Port: 4100},
		Log:       LogConfig{Level: "info"},
		Storage:   StorageConfig{Backend: "sqlite", DataDir: defaultDataDir()},
		Redis:     RedisConfig{Addr: "localhost:6379", Prefix: "spark:"},
		Generator: GeneratorConfig{Backend: "ollama"},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},
		Publish: PublishConfig{
			RecheckDelay: 2 * time.Minute,
			ProbeTimeout: 10 * time.Second,
		},
		GitHub: GitHubConfig{
			APIURL: "https://api.github.com",
			Branch: "main",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.spark.app) and secrets
// fall back to macOS Keychain (service: spark).
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/spark/config.json
// and secrets fall back to $XDG_DATA_HOME/spark/secrets.json.
//
// Environment variables (SPARK_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformStore(), keychainStore{})
}

// secretStore abstracts Keychain access for testing.
type secretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(st Store, kc secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, st); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets not provided via environment come from the platform store.
	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(service, s.account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values outside the supported sets.
func (c Config) Validate() error {
	check := func(key, val string, allowed []string) error {
		if slices.Contains(allowed, val) {
			return nil
		}
		return fmt.Errorf("invalid %s %q: must be one of %s", key, val, strings.Join(nonEmpty(allowed), ", "))
	}
	if err := check("storage.backend", c.Storage.Backend, StorageBackends); err != nil {
		return err
	}
	if err := check("generator.backend", c.Generator.Backend, GeneratorBackends); err != nil {
		return err
	}
	if err := check("publish.strategy", c.Publish.Strategy, PublishStrategies); err != nil {
		return err
	}
	if err := check("log.level", strings.ToLower(c.Log.Level), LogLevels); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Generator.Backend == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("missing required config: OpenAI API key for generator.backend=openai. "+
			"Set it via environment variable SPARK_OPENAI_API_KEY%s", secretHint("openai_api_key"))
	}
	if c.Publish.Strategy == "export" && c.Publish.ExportDir == "" {
		return fmt.Errorf("publish.strategy=export requires publish.export_dir")
	}
	return nil
}

func nonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// keychainStore reads and writes the platform secret store.
type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
