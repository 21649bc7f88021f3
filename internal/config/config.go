package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Engine   EngineConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера (управляющая поверхность)
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BrokerConfig - настройки шлюза брокера
type BrokerConfig struct {
	GatewayURL     string        // базовый URL REST шлюза
	RequestTimeout time.Duration // таймаут одного запроса к шлюзу
	RateLimit      float64       // запросов в секунду
	RateBurst      float64       // burst capacity
}

// EngineConfig - настройки торгового ядра
type EngineConfig struct {
	// Лестница лимитных ордеров
	MaxAttempts    int           // максимум попыток на эпизод
	PriceStep      float64       // шаг цены между попытками (к рынку)
	MinComboPrice  float64       // минимально допустимая цена комбо
	PriceTick      float64       // шаг цены инструмента (округление лимита)
	AttemptTimeout time.Duration // ожидание исполнения одной попытки
	FillPoll       time.Duration // интервал опроса статуса ордера

	// Предторговая проверка маржи
	MarginTimeout time.Duration

	// Периодические задачи
	SignalPoll        time.Duration // опрос источника сигналов
	ReconcileInterval time.Duration // сверка позиций с брокером (ассайнменты)
	RiskInterval      time.Duration // свип риск-монитора

	// Пороги риск-уровней по временной стоимости короткой ноги
	TimeValueUpper float64 // выше — SAFE
	TimeValueLower float64 // ниже или равно — CRITICAL

	// Таймауты закрытия/ребалансировки
	CloseTimeout    time.Duration
	MaxCloseRetries int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // 32 байта, AES-256 для API ключей фолловеров
	APIToken      string // токен управляющей поверхности
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "spreadpilot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Broker: BrokerConfig{
			GatewayURL:     getEnv("BROKER_GATEWAY_URL", "http://localhost:5000"),
			RequestTimeout: getEnvAsDuration("BROKER_REQUEST_TIMEOUT", 10*time.Second),
			RateLimit:      getEnvAsFloat("BROKER_RATE_LIMIT", 10),
			RateBurst:      getEnvAsFloat("BROKER_RATE_BURST", 20),
		},
		Engine: EngineConfig{
			MaxAttempts:    getEnvAsInt("LADDER_MAX_ATTEMPTS", 10),
			PriceStep:      getEnvAsFloat("LADDER_PRICE_STEP", 0.05),
			MinComboPrice:  getEnvAsFloat("LADDER_MIN_PRICE", 0.70),
			PriceTick:      getEnvAsFloat("PRICE_TICK", 0.05),
			AttemptTimeout: getEnvAsDuration("LADDER_ATTEMPT_TIMEOUT", 30*time.Second),
			FillPoll:       getEnvAsDuration("LADDER_FILL_POLL", 500*time.Millisecond),

			MarginTimeout: getEnvAsDuration("MARGIN_TIMEOUT", 10*time.Second),

			SignalPoll:        getEnvAsDuration("SIGNAL_POLL_INTERVAL", 15*time.Second),
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 1*time.Minute),
			RiskInterval:      getEnvAsDuration("RISK_INTERVAL", 30*time.Second),

			TimeValueUpper: getEnvAsFloat("RISK_TV_UPPER", 0.30),
			TimeValueLower: getEnvAsFloat("RISK_TV_LOWER", 0.10),

			CloseTimeout:    getEnvAsDuration("CLOSE_TIMEOUT", 30*time.Second),
			MaxCloseRetries: getEnvAsInt("MAX_CLOSE_RETRIES", 4),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			APIToken:      getEnv("API_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей фолловеров.
	// Ключ AES-256 выводится из секрета через PBKDF2, поэтому достаточно
	// стойкой парольной фразы.
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting follower API keys")
	}

	if len(c.Security.EncryptionKey) < 16 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 16 characters")
	}

	if c.Security.APIToken == "" {
		return fmt.Errorf("API_TOKEN is required to protect the control surface")
	}

	if len(c.Security.APIToken) < 16 {
		return fmt.Errorf("API_TOKEN must be at least 16 characters")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Engine.MaxAttempts < 1 || c.Engine.MaxAttempts > 20 {
		return fmt.Errorf("LADDER_MAX_ATTEMPTS must be between 1 and 20, got %d", c.Engine.MaxAttempts)
	}

	if c.Engine.PriceStep <= 0 {
		return fmt.Errorf("LADDER_PRICE_STEP must be positive, got %v", c.Engine.PriceStep)
	}

	if c.Engine.MinComboPrice < 0 {
		return fmt.Errorf("LADDER_MIN_PRICE cannot be negative, got %v", c.Engine.MinComboPrice)
	}

	if c.Engine.PriceTick <= 0 {
		return fmt.Errorf("PRICE_TICK must be positive, got %v", c.Engine.PriceTick)
	}

	if c.Engine.AttemptTimeout <= 0 {
		return fmt.Errorf("LADDER_ATTEMPT_TIMEOUT must be positive, got %v", c.Engine.AttemptTimeout)
	}

	if c.Engine.FillPoll <= 0 || c.Engine.FillPoll >= c.Engine.AttemptTimeout {
		return fmt.Errorf("LADDER_FILL_POLL must be positive and below LADDER_ATTEMPT_TIMEOUT, got %v", c.Engine.FillPoll)
	}

	// Пороги риска: верхний строго выше нижнего
	if c.Engine.TimeValueUpper <= c.Engine.TimeValueLower {
		return fmt.Errorf("RISK_TV_UPPER (%v) must be above RISK_TV_LOWER (%v)",
			c.Engine.TimeValueUpper, c.Engine.TimeValueLower)
	}

	if c.Engine.TimeValueLower < 0 {
		return fmt.Errorf("RISK_TV_LOWER cannot be negative, got %v", c.Engine.TimeValueLower)
	}

	if c.Engine.ReconcileInterval <= 0 || c.Engine.RiskInterval <= 0 || c.Engine.SignalPoll <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}

	if c.Engine.MaxCloseRetries < 0 || c.Engine.MaxCloseRetries > 10 {
		return fmt.Errorf("MAX_CLOSE_RETRIES must be between 0 and 10, got %d", c.Engine.MaxCloseRetries)
	}

	if c.Broker.RateLimit <= 0 {
		return fmt.Errorf("BROKER_RATE_LIMIT must be positive, got %v", c.Broker.RateLimit)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
