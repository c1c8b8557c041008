package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store drivers.
const (
	DriverMongoDB = "mongodb"
	DriverSQLite  = "sqlite"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	MongoDB   MongoDBConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	Finance   FinanceConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken      string
	PhoneNumberID    string
	VerifyToken      string
	BaseURL          string
	APIVersion       string
	ReportRecipients []string
	AllowedSenders   []string
}

// Enabled reports whether enough credentials are present to talk to the API.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the sheet import is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule       string
	ImportCronSchedule string
	Timezone           string
}

// Location loads the configured zone.
func (c ReportingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// FinanceConfig holds the operation's pricing and classification settings.
type FinanceConfig struct {
	CurrencyCode        string
	EggTrayPrice        decimal.Decimal
	EggsPerTray         int
	CategoryAliasesFile string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	trayPrice, err := decimal.NewFromString(getenvWithDefault("EGG_TRAY_PRICE", "0"))
	if err != nil {
		return nil, fmt.Errorf("EGG_TRAY_PRICE: %w", err)
	}
	eggsPerTray, err := strconv.Atoi(getenvWithDefault("EGGS_PER_TRAY", "30"))
	if err != nil {
		return nil, fmt.Errorf("EGGS_PER_TRAY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getenvWithDefault("APP_PORT", "8080"),
			LogLevel:       getenvWithDefault("LOG_LEVEL", "info"),
			AllowedOrigins: splitList(getenvWithDefault("CORS_ALLOWED_ORIGINS", "*")),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getenvWithDefault("STORE_DRIVER", DriverSQLite)),
			SQLitePath: getenvWithDefault("SQLITE_PATH", "farmledger.db"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "farmledger"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:      os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:    os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:      os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:          getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:       getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			ReportRecipients: splitList(os.Getenv("WHATSAPP_REPORT_RECIPIENTS")),
			AllowedSenders:   splitList(os.Getenv("WHATSAPP_ALLOWED_SENDERS")),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule:       getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * 5"),
			ImportCronSchedule: getenvWithDefault("IMPORT_CRON_SCHEDULE", "0 * * * *"),
			Timezone:           getenvWithDefault("TIMEZONE", "Africa/Conakry"),
		},
		Finance: FinanceConfig{
			CurrencyCode:        strings.ToUpper(getenvWithDefault("CURRENCY_CODE", "GNF")),
			EggTrayPrice:        trayPrice,
			EggsPerTray:         eggsPerTray,
			CategoryAliasesFile: os.Getenv("CATEGORY_ALIASES_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be provided when STORE_DRIVER=sqlite")
		}
	case DriverMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided when STORE_DRIVER=mongodb")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must not be empty")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.VerifyToken == "":
			return errors.New("META_VERIFY_TOKEN must be provided")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if _, err := c.Reporting.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	if c.Finance.EggsPerTray <= 0 {
		return errors.New("EGGS_PER_TRAY must be positive")
	}
	if c.Finance.EggTrayPrice.IsNegative() {
		return errors.New("EGG_TRAY_PRICE must not be negative")
	}
	if len(c.Finance.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY_CODE %q must be an ISO 4217 code", c.Finance.CurrencyCode)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
