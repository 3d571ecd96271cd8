package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	CORSOrigins string

	MaxConnections   int
	RateLimitPerMin  int
	MaxMessageSizeKB int
	LogLevel         string
	Environment      string

	// Поведение сессий и комнат
	SnapshotPerSec int
	RoomTTLHours   int
	AlertPreset    string

	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

func (p *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog безопасный вывод DSN без пароля для логирования
func (p *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func LoadConfig() *Config {
	// Загрузка .env файла (если существует)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		MaxConnections:   getEnvInt("MAX_CONNECTIONS", 1000),
		RateLimitPerMin:  getEnvInt("RATE_PER_MIN", 1000),
		MaxMessageSizeKB: getEnvInt("MAX_MESSAGE_SIZE_KB", 64),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		Environment:      getEnv("ENVIRONMENT", "production"),
		SnapshotPerSec:   getEnvInt("SNAPSHOT_PER_SEC", 10),
		RoomTTLHours:     getEnvInt("ROOM_TTL_HOURS", 2),
		AlertPreset:      getEnv("ALERT_PRESET", "moderate"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "hohm"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
	}

	// Проверка обязательных полей
	if cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}
	if cfg.DBName == "" {
		fmt.Println("WARNING: DB_NAME is not set, using default: hohm")
		cfg.DBName = "hohm"
	}
	if cfg.SnapshotPerSec < 1 {
		cfg.SnapshotPerSec = 10
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
