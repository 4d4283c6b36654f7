package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Unlock UnlockConfig
}

type AppConfig struct {
	Port       string
	BaseURL    string // Публичный адрес сервиса (для формирования коротких ссылок)
	BcryptCost int
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host string
	Port string
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> owner id
}

// UnlockConfig лимиты на попытки подбора пароля для POST /{code}
type UnlockConfig struct {
	AttemptsPerSecond float64
	BurstSize         int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimSuffix(viper.GetString("BASE_URL"), "/")
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:" + cfg.App.Port
	}
	cfg.App.BcryptCost = viper.GetInt("BCRYPT_COST")
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:owner1,key2:owner2
	apiKeysRaw := viper.GetString("API_KEYS")
	cfg.Auth.APIKeys = parseAPIKeys(apiKeysRaw)

	// Лимиты попыток разблокировки защищённых ссылок
	cfg.Unlock.AttemptsPerSecond = viper.GetFloat64("UNLOCK_ATTEMPTS_PER_SECOND")
	if cfg.Unlock.AttemptsPerSecond == 0 {
		cfg.Unlock.AttemptsPerSecond = 1
	}
	cfg.Unlock.BurstSize = viper.GetInt("UNLOCK_BURST")
	if cfg.Unlock.BurstSize == 0 {
		cfg.Unlock.BurstSize = 5
	}

	return &cfg, nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:owner1,key2:owner2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}
