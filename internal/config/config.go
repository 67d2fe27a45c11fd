// internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Models   ModelStoreConfig
	Planning PlanningConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	DataDir     string
	DataSource  string // "csv" or "postgres"
	LogLevel    string
	LogFile     string
	LoadWorkers int
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	DerivedTTLSeconds int
}

// ModelStoreConfig configures where trained model blobs live. When the bucket
// is empty the filesystem store under App.DataDir is used.
type ModelStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "demandplan")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("APP_DATA_DIR", "./data")
		viper.SetDefault("APP_DATA_SOURCE", "csv")
		viper.SetDefault("APP_LOG_LEVEL", "info")
		viper.SetDefault("APP_LOG_FILE", "")
		viper.SetDefault("APP_LOAD_WORKERS", 4)
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_DERIVED_TTL_SECONDS", 300)
		viper.SetDefault("MODEL_STORE_ENDPOINT", "")
		viper.SetDefault("MODEL_STORE_ACCESS_KEY", "")
		viper.SetDefault("MODEL_STORE_SECRET_KEY", "")
		viper.SetDefault("MODEL_STORE_BUCKET", "")
		viper.SetDefault("MODEL_STORE_USE_SSL", true)

		// Read from environment variables
		viper.AutomaticEnv()

		// Ensure data directory exists
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			App: AppConfig{
				DataDir:     viper.GetString("APP_DATA_DIR"),
				DataSource:  viper.GetString("APP_DATA_SOURCE"),
				LogLevel:    viper.GetString("APP_LOG_LEVEL"),
				LogFile:     viper.GetString("APP_LOG_FILE"),
				LoadWorkers: viper.GetInt("APP_LOAD_WORKERS"),
			},
			Cache: CacheConfig{
				Enabled:           viper.GetBool("CACHE_ENABLED"),
				RedisURL:          viper.GetString("REDIS_URL"),
				RedisHost:         viper.GetString("REDIS_HOST"),
				RedisPort:         viper.GetString("REDIS_PORT"),
				RedisPassword:     viper.GetString("REDIS_PASSWORD"),
				RedisDB:           viper.GetInt("REDIS_DB"),
				DerivedTTLSeconds: viper.GetInt("CACHE_DERIVED_TTL_SECONDS"),
			},
			Models: ModelStoreConfig{
				Endpoint:  viper.GetString("MODEL_STORE_ENDPOINT"),
				AccessKey: viper.GetString("MODEL_STORE_ACCESS_KEY"),
				SecretKey: viper.GetString("MODEL_STORE_SECRET_KEY"),
				Bucket:    viper.GetString("MODEL_STORE_BUCKET"),
				UseSSL:    viper.GetBool("MODEL_STORE_USE_SSL"),
			},
			Planning: LoadPlanning(),
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
