package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cyclebot/internal/bot"
	"cyclebot/pkg/crypto"
	"cyclebot/pkg/utils"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ============ Load ============

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Exchange.Name != "paper" || cfg.Database.Driver != DriverSQLite {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Bot.Engine.Pair != "BTCTRY" || cfg.Bot.Risk.MaxTradesPerDay != 10 {
		t.Errorf("bot defaults = %+v", cfg.Bot)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
  allowed_origins: ["https://ui.example"]
database:
  driver: none
exchange:
  name: paper
  paper:
    balances: {TRY: 5000}
    buy_fill_delay: 3s
bot:
  engine:
    pair: ETHTRY
    target_profit_pct: 1.5
    trade_amount: 250
    continuous: true
  cooldown: 10s
  sell_confirm: balance
  fill_timeout: 2m
logging:
  level: debug
  format: text
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.Port != 9090 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Database.Enabled() {
		t.Error("database must be disabled")
	}
	if cfg.Exchange.Paper.Balances["TRY"] != 5000 || cfg.Exchange.Paper.BuyFillDelay != 3*time.Second {
		t.Errorf("paper = %+v", cfg.Exchange.Paper)
	}
	e := cfg.Bot.Engine
	if e.Pair != "ETHTRY" || e.TargetProfitPct != 1.5 || e.TradeAmount != 250 || !e.Continuous {
		t.Errorf("engine = %+v", e)
	}
	// не указанное в файле остаётся по умолчанию
	if e.StopLossPct != -5 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("defaults lost: stop %v, host %q", e.StopLossPct, cfg.Server.Host)
	}

	s := cfg.EngineSettings()
	if s.Cooldown != 10*time.Second || s.SellConfirm != bot.SellConfirmBalance || s.Fill.Timeout != 2*time.Minute {
		t.Errorf("settings = %+v", s)
	}
	if lc := cfg.LogConfig(); lc.Level != "debug" || lc.Format != "text" {
		t.Errorf("log config = %+v", lc)
	}
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\nbot:\n  engine:\n    trade_amount: 250\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("BOT_TRADE_AMOUNT", "750.5")
	t.Setenv("BOT_CONTINUOUS", "true")
	t.Setenv("BOT_COOLDOWN", "45s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env value", cfg.Server.Port)
	}
	if cfg.Bot.Engine.TradeAmount != 750.5 || !cfg.Bot.Engine.Continuous || cfg.Bot.Cooldown != 45*time.Second {
		t.Errorf("bot = %+v", cfg.Bot)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadFile_InvalidEnvKeepsValue(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file must fail")
	}
	if _, err := LoadFile(writeFile(t, "server: [1, 2")); err == nil {
		t.Error("broken yaml must fail")
	}
}

func TestLoad_UsesConfigFileEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeFile(t, "server:\n  port: 6060\n"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

// ============ Validate ============

func TestValidate(t *testing.T) {
	key, _ := crypto.GenerateKeyHex()

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"https without cert", func(c *Config) { c.Server.UseHTTPS = true }, "server.cert_file"},
		{"driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"sqlite path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad key", func(c *Config) { c.Security.EncryptionKey = "short" }, "security.encryption_key"},
		{"sealed without key", func(c *Config) { c.Exchange.APISecret = "enc:abc" }, "security.encryption_key"},
		{"token hash", func(c *Config) { c.Security.APITokenHash = "plain" }, "security.api_token_hash"},
		{"exchange", func(c *Config) { c.Exchange.Name = "binance" }, "exchange.name"},
		{"engine pair", func(c *Config) { c.Bot.Engine.Pair = "" }, "bot.engine.pair"},
		{"engine amount", func(c *Config) { c.Bot.Engine.TradeAmount = -1 }, "bot.engine.trade_amount"},
		{"risk trades", func(c *Config) { c.Bot.Risk.MaxTradesPerDay = 0 }, "bot.risk.max_trades_per_day"},
		{"sell confirm", func(c *Config) { c.Bot.SellConfirm = "guess" }, "bot.sell_confirm"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"valid key", func(c *Config) { c.Security.EncryptionKey = key }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verrs utils.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error = %v, want ValidationErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("fields = %v, want %s", verrs, tt.wantField)
			}
		})
	}
}

// ============ Преобразования ============

func TestDatabaseConfig_DSN(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sealed, err := crypto.SealSecret("s3cret", key)
	if err != nil {
		t.Fatalf("SealSecret: %v", err)
	}

	pg := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: 5432, Name: "cb", User: "u", Password: sealed, SSLMode: "disable"}
	dsn, err := pg.DSN(key)
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if !strings.Contains(dsn, "password=s3cret") || !strings.Contains(dsn, "host=db") {
		t.Errorf("dsn = %q", dsn)
	}
	if strings.Contains(pg.DSNWithoutPassword(), "s3cret") {
		t.Error("password leaked")
	}
	if _, err := pg.DSN(nil); !errors.Is(err, crypto.ErrMissingKey) {
		t.Errorf("DSN without key = %v, want ErrMissingKey", err)
	}

	lite := DatabaseConfig{Driver: DriverSQLite, Path: "data/x.db"}
	if dsn, _ := lite.DSN(nil); dsn != "data/x.db" {
		t.Errorf("sqlite dsn = %q", dsn)
	}
	if _, err := (DatabaseConfig{Driver: DriverNone}).DSN(nil); err == nil {
		t.Error("none driver has no DSN")
	}
}

func TestExchangeOptions(t *testing.T) {
	cfg := Default()
	cfg.Exchange.Name = "btcturk"
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	cfg.Exchange.PublicRate = 5
	cfg.Exchange.Paper.Seed = 7

	opts := cfg.ExchangeOptions()
	if opts.Name != "btcturk" || opts.BTCTurk.APIKey != "key" || opts.BTCTurk.PublicRate != 5 || opts.Paper.Seed != 7 {
		t.Errorf("options = %+v", opts)
	}
}

func TestKey(t *testing.T) {
	cfg := Default()
	if cfg.Key() != nil {
		t.Error("no key configured")
	}
	hexKey, _ := crypto.GenerateKeyHex()
	cfg.Security.EncryptionKey = hexKey
	if len(cfg.Key()) != 32 {
		t.Errorf("key len = %d", len(cfg.Key()))
	}
}
