package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t, "STORE_DRIVER", "SQLITE_PATH", "EGG_TRAY_PRICE", "EGGS_PER_TRAY", "CURRENCY_CODE",
		"WHATSAPP_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_ALLOWED_SENDERS", "CORS_ALLOWED_ORIGINS",
		"GOOGLE_SHEETS_CREDENTIALS_PATH", "GOOGLE_SHEET_DATABASE_ID")
	t.Setenv("TIMEZONE", "UTC")

	path := writeEnv(t, `STORE_DRIVER=SQLite
SQLITE_PATH=/tmp/ledger.db
EGG_TRAY_PRICE=2500
EGGS_PER_TRAY=30
CURRENCY_CODE=gnf
WHATSAPP_ALLOWED_SENDERS=224600000001, 224600000002,
CORS_ALLOWED_ORIGINS=https://farm.example, https://ops.example
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/ledger.db", cfg.Store.SQLitePath)
	assert.True(t, cfg.Finance.EggTrayPrice.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, "GNF", cfg.Finance.CurrencyCode)
	assert.Equal(t, []string{"224600000001", "224600000002"}, cfg.WhatsApp.AllowedSenders)
	assert.Equal(t, []string{"https://farm.example", "https://ops.example"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.WhatsApp.Enabled())
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoad_MissingFileFallsBackToEnvironment(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("EGGS_PER_TRAY", "")
	t.Setenv("CURRENCY_CODE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Finance.EggsPerTray)
	assert.Equal(t, "GNF", cfg.Finance.CurrencyCode)
}

func TestLoad_RejectsBadNumbers(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("EGG_TRAY_PRICE", "cheap")

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EGG_TRAY_PRICE")
}

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: "8080"},
		Store:     StoreConfig{Driver: DriverSQLite, SQLitePath: "ledger.db"},
		Reporting: ReportingConfig{CronSchedule: "0 20 * * 5", Timezone: "UTC"},
		Finance:   FinanceConfig{CurrencyCode: "GNF", EggsPerTray: 30},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(c *Config){
		"mongodb without uri": func(c *Config) { c.Store.Driver = DriverMongoDB },
		"unknown driver":      func(c *Config) { c.Store.Driver = "postgres" },
		"whatsapp without verify token": func(c *Config) {
			c.WhatsApp = WhatsAppConfig{AccessToken: "t", PhoneNumberID: "p", BaseURL: "https://graph.facebook.com", APIVersion: "v20.0"}
		},
		"unknown timezone":   func(c *Config) { c.Reporting.Timezone = "Mars/Olympus" },
		"zero eggs per tray": func(c *Config) { c.Finance.EggsPerTray = 0 },
		"negative tray":      func(c *Config) { c.Finance.EggTrayPrice = decimal.NewFromInt(-1) },
		"bad currency":       func(c *Config) { c.Finance.CurrencyCode = "FRANC" },
		"no cron":            func(c *Config) { c.Reporting.CronSchedule = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}
