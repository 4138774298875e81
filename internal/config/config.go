package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Kafka        KafkaConfig        `json:"kafka"`
	Logger       LoggerConfig       `json:"logger"`
	Notification NotificationConfig `json:"notification"`
	Cache        CacheConfig        `json:"cache"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string   `json:"port"`
	Host         string   `json:"host"`
	ReadTimeout  int      `json:"read_timeout"`
	WriteTimeout int      `json:"write_timeout"`
	CORSOrigins  []string `json:"cors_origins"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host          string `json:"host"`
	Port          string `json:"port"`
	User          string `json:"user"`
	Password      string `json:"password"`
	DBName        string `json:"db_name"`
	SSLMode       string `json:"ssl_mode"`
	MaxOpenConns  int    `json:"max_open_conns"`
	RunMigrations bool   `json:"run_migrations"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka.
// Пустой список брокеров отключает Kafka целиком.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Enabled сообщает, настроены ли брокеры.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Topics представляет список топиков Kafka
type Topics struct {
	Orders  string `json:"orders"`
	Coupons string `json:"coupons"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// NotificationConfig описывает каналы уведомлений о заказах
type NotificationConfig struct {
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
	TelegramBaseURL  string `json:"telegram_base_url"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
}

// TelegramConfigured сообщает, заданы ли токен бота и чат назначения.
func (c NotificationConfig) TelegramConfigured() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// CacheConfig хранит TTL кешей Redis
type CacheConfig struct {
	OrderTTLMinutes        int `json:"order_ttl_minutes"`
	PendingCountTTLSeconds int `json:"pending_count_ttl_seconds"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
}

// Load загружает конфигурацию из .env (если файл есть) и переменных окружения
func Load() *Config {
	// .env не обязателен: в контейнере всё приходит через окружение
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "5000"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "kcp_user"),
			Password:      getEnv("DB_PASSWORD", "kcp_pass"),
			DBName:        getEnv("DB_NAME", "kcp_organics"),
			SSLMode:       getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			RunMigrations: getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", ""),
			GroupID: getEnv("KAFKA_GROUP_ID", "kcp-organics"),
			Topics: Topics{
				Orders:  getEnv("KAFKA_TOPIC_ORDERS", "orders"),
				Coupons: getEnv("KAFKA_TOPIC_COUPONS", "coupons"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Notification: NotificationConfig{
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			TelegramBaseURL:  getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			TimeoutSeconds:   getEnvAsInt("NOTIFICATION_TIMEOUT_SECONDS", 10),
		},
		Cache: CacheConfig{
			OrderTTLMinutes:        getEnvAsInt("CACHE_ORDER_TTL_MINUTES", 15),
			PendingCountTTLSeconds: getEnvAsInt("CACHE_PENDING_COUNT_TTL_SECONDS", 30),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}

// getEnvAsList разбивает значение по запятым, пустые элементы отбрасываются
func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
