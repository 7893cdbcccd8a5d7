package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SmartMix/internal/calc/predict"
	"SmartMix/internal/model"
)

const (
	configPathEnv    = "SMARTMIX_CONFIG"
	addrEnv          = "ADDR"
	tokenKeyEnv      = "TOKEN_KEY"
	accessKeyEnv     = "ACCESS_KEY"
	accessKeyHashEnv = "ACCESS_KEY_HASH"
	databaseURLEnv   = "DATABASE_URL"
	modelPathEnv     = "MODEL_PATH"
	scalerPathEnv    = "SCALER_PATH"
	datasetPathEnv   = "DATASET_PATH"
	ortLibraryEnv    = "ONNXRUNTIME_LIB"
	syncURLEnv       = "SYNC_URL"
	logLevelEnv      = "LOG_LEVEL"
	logFormatEnv     = "LOG_FORMAT"
	botTokenEnv      = "TOKEN_BOT"
	toleranceEnv     = "RECOMMEND_TOLERANCE"
)

// Config holds every setting of the server and the bot.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Assets      AssetsConfig      `yaml:"assets"`
	Fallbacks   predict.Fallbacks `yaml:"fallbacks"`
	Recommender RecommenderConfig `yaml:"recommender"`
	Sync        SyncConfig        `yaml:"sync"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Bot         BotConfig         `yaml:"bot"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	// TLS is used when both files are set.
	TLSCert     string  `yaml:"tls_cert"`
	TLSKey      string  `yaml:"tls_key"`
	RateLimit   float64 `yaml:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst"`
	AllowOrigin string  `yaml:"allow_origin"`
}

// AuthConfig gates /api/user behind an access key.
type AuthConfig struct {
	TokenKey      string        `yaml:"token_key"`
	AccessKey     string        `yaml:"access_key"`
	AccessKeyHash string        `yaml:"access_key_hash"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// AssetsConfig locates the model artifacts and the reference table.
type AssetsConfig struct {
	ModelPath   string       `yaml:"model_path"`
	ScalerPath  string       `yaml:"scaler_path"`
	OrtLibrary  string       `yaml:"ort_library"`
	DatasetPath string       `yaml:"dataset_path"`
	Schema      model.Schema `yaml:"schema"`
}

// ModelOptions adapts the section for model.Load.
func (a AssetsConfig) ModelOptions() model.Options {
	return model.Options{
		ModelPath:  a.ModelPath,
		ScalerPath: a.ScalerPath,
		OrtLibrary: a.OrtLibrary,
		Schema:     a.Schema,
	}
}

type RecommenderConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	K         int     `yaml:"k"`
}

// SyncConfig describes the external sheet endpoint. An empty endpoint
// disables forwarding.
type SyncConfig struct {
	Endpoint        string            `yaml:"endpoint"`
	Timeout         time.Duration     `yaml:"timeout"`
	Fields          map[string]string `yaml:"fields"`
	BreakerFailures uint32            `yaml:"breaker_failures"`
	BreakerCooldown time.Duration     `yaml:"breaker_cooldown"`
}

// DatabaseConfig enables laboratory feedback storage when URL is set.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BotConfig struct {
	Token string `yaml:"token"`
}

// Load populates the environment from .env (if present), reads the YAML file
// named by SMARTMIX_CONFIG over the defaults and applies environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		addrEnv:          &c.Server.Addr,
		tokenKeyEnv:      &c.Auth.TokenKey,
		accessKeyEnv:     &c.Auth.AccessKey,
		accessKeyHashEnv: &c.Auth.AccessKeyHash,
		databaseURLEnv:   &c.Database.URL,
		modelPathEnv:     &c.Assets.ModelPath,
		scalerPathEnv:    &c.Assets.ScalerPath,
		datasetPathEnv:   &c.Assets.DatasetPath,
		ortLibraryEnv:    &c.Assets.OrtLibrary,
		syncURLEnv:       &c.Sync.Endpoint,
		logLevelEnv:      &c.Logging.Level,
		logFormatEnv:     &c.Logging.Format,
		botTokenEnv:      &c.Bot.Token,
	}
	for env, dst := range strs {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(toleranceEnv); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", toleranceEnv, err)
		}
		c.Recommender.Tolerance = tol
	}
	return nil
}

func (c *Config) normalize() {
	d := Default()
	if c.Recommender.K <= 0 {
		c.Recommender.K = d.Recommender.K
	}
	if c.Recommender.Tolerance < 0 {
		c.Recommender.Tolerance = 0
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = d.Auth.SessionTTL
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = d.Server.RateLimit
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			StaticDir:   "./static/main",
			RateLimit:   5,
			RateBurst:   10,
			AllowOrigin: "*",
		},
		Auth: AuthConfig{SessionTTL: 12 * time.Hour},
		Assets: AssetsConfig{
			ModelPath:   "assets/model.json",
			ScalerPath:  "assets/scaler.json",
			DatasetPath: "assets/database.csv",
			Schema:      model.DefaultSchema(),
		},
		Fallbacks:   predict.DefaultFallbacks(),
		Recommender: RecommenderConfig{Tolerance: 2.5, K: 5},
		Sync:        SyncConfig{Timeout: 5 * time.Second, BreakerFailures: 3, BreakerCooldown: 30 * time.Second},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
	}
}
