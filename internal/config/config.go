package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cyclebot/internal/bot"
	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/pkg/crypto"
	"cyclebot/pkg/utils"
)

// Драйверы журнала сделок
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverNone     = "none"
)

// Config содержит всю конфигурацию приложения
//
// Порядок: значения по умолчанию → YAML файл (CONFIG_FILE) → переменные окружения.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Security SecurityConfig `yaml:"security"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Bot      BotConfig      `yaml:"bot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	UseHTTPS        bool          `yaml:"use_https"`
	CertFile        string        `yaml:"cert_file"`
	KeyFile         string        `yaml:"key_file"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr - адрес для net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig - настройки SQL журнала сделок
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, sqlite3, none
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"` // допускается enc:
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"` // файл sqlite3
}

// LedgerConfig - файловый журнал сделок (JSON lines)
type LedgerConfig struct {
	Path string `yaml:"path"` // пусто - не вести
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// EncryptionKey - 32 байта или 64 hex-символа для значений enc:
	EncryptionKey string `yaml:"encryption_key"`

	// APITokenHash - bcrypt-хеш токена управления; пусто - API без авторизации
	APITokenHash string `yaml:"api_token_hash"`
}

// ExchangeConfig - биржа и её ключи
type ExchangeConfig struct {
	Name        string  `yaml:"name"` // btcturk, paper
	APIKey      string  `yaml:"api_key"`
	APISecret   string  `yaml:"api_secret"` // допускается enc:
	BaseURL     string  `yaml:"base_url"`
	PublicRate  float64 `yaml:"public_rate"`
	PrivateRate float64 `yaml:"private_rate"`

	Paper PaperConfig `yaml:"paper"`
}

// PaperConfig - демо-биржа
type PaperConfig struct {
	Balances     map[string]float64 `yaml:"balances"`
	Prices       map[string]float64 `yaml:"prices"`
	Volatility   float64            `yaml:"volatility"`
	Drift        float64            `yaml:"drift"`
	BuyFillDelay time.Duration      `yaml:"buy_fill_delay"`
	FeePct       float64            `yaml:"fee_pct"`
	Seed         int64              `yaml:"seed"`
}

// BotConfig - параметры цикла по умолчанию и поведение движка
type BotConfig struct {
	Engine models.EngineConfig `yaml:"engine"`
	Risk   models.RiskLimits   `yaml:"risk"`

	BuyOffsetPct    float64       `yaml:"buy_offset_pct"`
	Cooldown        time.Duration `yaml:"cooldown"`
	OrderRetryDelay time.Duration `yaml:"order_retry_delay"`
	EntryGating     bool          `yaml:"entry_gating"`
	EarlyExit       bool          `yaml:"early_exit"`
	SellConfirm     string        `yaml:"sell_confirm"` // price, balance

	FillTimeout         time.Duration `yaml:"fill_timeout"`
	FillInitialInterval time.Duration `yaml:"fill_initial_interval"`
	FillMaxInterval     time.Duration `yaml:"fill_max_interval"`

	HistoryCapacity int           `yaml:"history_capacity"`
	EventBuffer     int           `yaml:"event_buffer"`
	SinkTimeout     time.Duration `yaml:"sink_timeout"`

	// AutoStart - запустить цикл с Engine при старте serve
	AutoStart bool `yaml:"auto_start"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	Development bool   `yaml:"development"`
}

// Default - конфигурация без файла и окружения
func Default() *Config {
	settings := bot.DefaultSettings()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  DriverSQLite,
			Host:    "localhost",
			Port:    5432,
			Name:    "cyclebot",
			User:    "cyclebot",
			SSLMode: "disable",
			Path:    "data/cyclebot.db",
		},
		Ledger: LedgerConfig{Path: "data/trades.jsonl"},
		Exchange: ExchangeConfig{
			Name: "paper",
		},
		Bot: BotConfig{
			Engine: models.EngineConfig{
				Pair:            "BTCTRY",
				TargetProfitPct: 2,
				StopLossPct:     models.DefaultStopLossPct,
				TradeAmount:     1000,
				CheckIntervalMs: models.DefaultCheckIntervalMs,
			},
			Risk:                models.DefaultRiskLimits(),
			BuyOffsetPct:        settings.BuyOffsetPct,
			Cooldown:            settings.Cooldown,
			OrderRetryDelay:     settings.OrderRetryDelay,
			EntryGating:         settings.EntryGating,
			EarlyExit:           settings.EarlyExit,
			SellConfirm:         string(settings.SellConfirm),
			FillTimeout:         settings.Fill.Timeout,
			FillInitialInterval: settings.Fill.InitialInterval,
			FillMaxInterval:     settings.Fill.MaxInterval,
			HistoryCapacity:     settings.HistoryCapacity,
			EventBuffer:         settings.EventBuffer,
			SinkTimeout:         settings.SinkTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load загружает конфигурацию: файл из CONFIG_FILE (если задан), затем окружение
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile - Load с явным путём к YAML файлу (пусто - без файла)
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет значения переменными окружения
func (c *Config) applyEnv() {
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.UseHTTPS = getEnvAsBool("USE_HTTPS", c.Server.UseHTTPS)
	c.Server.CertFile = getEnv("CERT_FILE", c.Server.CertFile)
	c.Server.KeyFile = getEnv("KEY_FILE", c.Server.KeyFile)
	c.Server.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)

	c.Ledger.Path = getEnv("LEDGER_PATH", c.Ledger.Path)

	c.Security.EncryptionKey = getEnv("ENCRYPTION_KEY", c.Security.EncryptionKey)
	c.Security.APITokenHash = getEnv("API_TOKEN_HASH", c.Security.APITokenHash)

	c.Exchange.Name = getEnv("EXCHANGE", c.Exchange.Name)
	c.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", c.Exchange.APISecret)
	c.Exchange.BaseURL = getEnv("EXCHANGE_BASE_URL", c.Exchange.BaseURL)

	c.Bot.Engine.Pair = getEnv("BOT_PAIR", c.Bot.Engine.Pair)
	c.Bot.Engine.TargetProfitPct = getEnvAsFloat("BOT_TARGET_PROFIT_PCT", c.Bot.Engine.TargetProfitPct)
	c.Bot.Engine.StopLossPct = getEnvAsFloat("BOT_STOP_LOSS_PCT", c.Bot.Engine.StopLossPct)
	c.Bot.Engine.TradeAmount = getEnvAsFloat("BOT_TRADE_AMOUNT", c.Bot.Engine.TradeAmount)
	c.Bot.Engine.CheckIntervalMs = int64(getEnvAsInt("BOT_CHECK_INTERVAL_MS", int(c.Bot.Engine.CheckIntervalMs)))
	c.Bot.Engine.Continuous = getEnvAsBool("BOT_CONTINUOUS", c.Bot.Engine.Continuous)
	c.Bot.Risk.MaxDailyLossPct = getEnvAsFloat("RISK_MAX_DAILY_LOSS_PCT", c.Bot.Risk.MaxDailyLossPct)
	c.Bot.Risk.MaxPositionSizePct = getEnvAsFloat("RISK_MAX_POSITION_SIZE_PCT", c.Bot.Risk.MaxPositionSizePct)
	c.Bot.Risk.MaxTradesPerDay = getEnvAsInt("RISK_MAX_TRADES_PER_DAY", c.Bot.Risk.MaxTradesPerDay)
	c.Bot.Cooldown = getEnvAsDuration("BOT_COOLDOWN", c.Bot.Cooldown)
	c.Bot.EntryGating = getEnvAsBool("BOT_ENTRY_GATING", c.Bot.EntryGating)
	c.Bot.EarlyExit = getEnvAsBool("BOT_EARLY_EXIT", c.Bot.EarlyExit)
	c.Bot.SellConfirm = getEnv("BOT_SELL_CONFIRM", c.Bot.SellConfirm)
	c.Bot.FillTimeout = getEnvAsDuration("BOT_FILL_TIMEOUT", c.Bot.FillTimeout)
	c.Bot.AutoStart = getEnvAsBool("BOT_AUTO_START", c.Bot.AutoStart)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LOG_OUTPUT", c.Logging.Output)
	c.Logging.Development = getEnvAsBool("LOG_DEVELOPMENT", c.Logging.Development)
}

// Validate проверяет все секции и возвращает ошибки разом
func (c *Config) Validate() error {
	var errs utils.ValidationErrors

	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs.Add("server.port", fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		errs.Add("server.cert_file", "cert_file and key_file are required with HTTPS")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			errs.Add("database.port", fmt.Sprintf("must be between 1 and 65535, got %d", c.Database.Port))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs.Add("database.path", "required for sqlite3")
		}
	case DriverNone, "":
	default:
		errs.Add("database.driver", fmt.Sprintf("unsupported driver %q", c.Database.Driver))
	}

	// ключ нужен, только если есть зашифрованные значения
	if c.Security.EncryptionKey != "" {
		if _, err := crypto.ParseKey(c.Security.EncryptionKey); err != nil {
			errs.AddError("security.encryption_key", err)
		}
	} else if c.hasSealedSecrets() {
		errs.Add("security.encryption_key", "required to open enc: values")
	}
	if h := c.Security.APITokenHash; h != "" && !strings.HasPrefix(h, "$2") {
		errs.Add("security.api_token_hash", "must be a bcrypt hash")
	}

	if !exchange.IsSupported(c.Exchange.Name) {
		errs.Add("exchange.name", fmt.Sprintf("unsupported exchange %q", c.Exchange.Name))
	}

	if err := c.Bot.Engine.WithDefaults().Validate(); err != nil {
		var engineErrs utils.ValidationErrors
		if errors.As(err, &engineErrs) {
			for _, e := range engineErrs {
				errs.Add("bot.engine."+e.Field, e.Message)
			}
		} else {
			errs.AddError("bot.engine", err)
		}
	}
	if c.Bot.Risk.MaxDailyLossPct <= 0 || c.Bot.Risk.MaxPositionSizePct <= 0 || c.Bot.Risk.MaxPositionSizePct > 100 {
		errs.Add("bot.risk", "loss and position limits must be positive, position at most 100%")
	}
	if c.Bot.Risk.MaxTradesPerDay <= 0 {
		errs.Add("bot.risk.max_trades_per_day", "must be positive")
	}
	if c.Bot.BuyOffsetPct < 0 || c.Bot.BuyOffsetPct >= 100 {
		errs.Add("bot.buy_offset_pct", "must be in [0, 100)")
	}
	switch bot.SellConfirmMode(c.Bot.SellConfirm) {
	case bot.SellConfirmPrice, bot.SellConfirmBalance, "":
	default:
		errs.Add("bot.sell_confirm", fmt.Sprintf("must be %q or %q", bot.SellConfirmPrice, bot.SellConfirmBalance))
	}
	if c.Bot.FillTimeout < 0 || c.Bot.Cooldown < 0 {
		errs.Add("bot.fill_timeout", "durations cannot be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "":
	default:
		errs.Add("logging.format", fmt.Sprintf("unsupported format %q", c.Logging.Format))
	}

	return errs.Err()
}

func (c *Config) hasSealedSecrets() bool {
	for _, v := range []string{c.Exchange.APIKey, c.Exchange.APISecret, c.Database.Password} {
		if strings.HasPrefix(v, crypto.SecretPrefix) {
			return true
		}
	}
	return false
}

// ============================================================
// Преобразование в настройки компонентов
// ============================================================

// Key - ключ шифрования (nil, если не задан)
func (c *Config) Key() []byte {
	if c.Security.EncryptionKey == "" {
		return nil
	}
	key, err := crypto.ParseKey(c.Security.EncryptionKey)
	if err != nil {
		return nil
	}
	return key
}

// EngineSettings - настройки движка
func (c *Config) EngineSettings() bot.Settings {
	s := bot.DefaultSettings()
	s.BuyOffsetPct = c.Bot.BuyOffsetPct
	s.Cooldown = c.Bot.Cooldown
	s.OrderRetryDelay = c.Bot.OrderRetryDelay
	s.EntryGating = c.Bot.EntryGating
	s.EarlyExit = c.Bot.EarlyExit
	if c.Bot.SellConfirm != "" {
		s.SellConfirm = bot.SellConfirmMode(c.Bot.SellConfirm)
	}
	if c.Bot.FillTimeout > 0 {
		s.Fill.Timeout = c.Bot.FillTimeout
	}
	if c.Bot.FillInitialInterval > 0 {
		s.Fill.InitialInterval = c.Bot.FillInitialInterval
	}
	if c.Bot.FillMaxInterval > 0 {
		s.Fill.MaxInterval = c.Bot.FillMaxInterval
	}
	if c.Bot.HistoryCapacity > 0 {
		s.HistoryCapacity = c.Bot.HistoryCapacity
	}
	if c.Bot.EventBuffer > 0 {
		s.EventBuffer = c.Bot.EventBuffer
	}
	if c.Bot.SinkTimeout > 0 {
		s.SinkTimeout = c.Bot.SinkTimeout
	}
	return s
}

// ExchangeOptions - параметры фабрики биржи (секреты ещё не расшифрованы)
func (c *Config) ExchangeOptions() exchange.Options {
	p := c.Exchange.Paper
	return exchange.Options{
		Name: c.Exchange.Name,
		BTCTurk: exchange.BTCTurkConfig{
			APIKey:      c.Exchange.APIKey,
			APISecret:   c.Exchange.APISecret,
			BaseURL:     c.Exchange.BaseURL,
			PublicRate:  c.Exchange.PublicRate,
			PrivateRate: c.Exchange.PrivateRate,
		},
		Paper: exchange.PaperConfig{
			Balances:     p.Balances,
			Prices:       p.Prices,
			Volatility:   p.Volatility,
			Drift:        p.Drift,
			BuyFillDelay: p.BuyFillDelay,
			FeePct:       p.FeePct,
			Seed:         p.Seed,
		},
	}
}

// LogConfig - настройки zap логгера
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:       c.Logging.Level,
		Format:      c.Logging.Format,
		Output:      c.Logging.Output,
		Development: c.Logging.Development,
	}
}

// DSN возвращает строку подключения к базе данных
//
// Пароль с префиксом enc: расшифровывается ключом key.
func (d DatabaseConfig) DSN(key []byte) (string, error) {
	switch d.Driver {
	case DriverSQLite:
		return d.Path, nil
	case DriverPostgres:
		password, err := crypto.OpenSecret(d.Password, key)
		if err != nil {
			return "", fmt.Errorf("database password: %w", err)
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, password, d.Name, d.SSLMode), nil
	default:
		return "", fmt.Errorf("no DSN for driver %q", d.Driver)
	}
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Enabled - SQL журнал включён
func (d DatabaseConfig) Enabled() bool {
	return d.Driver != "" && d.Driver != DriverNone
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, s := range strings.Split(valueStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
