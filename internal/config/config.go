package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bookleaf/tracker/internal/models"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	FreshdeskDomain     string        `mapstructure:"FRESHDESK_DOMAIN"`
	FreshdeskAPIKey     string        `mapstructure:"FRESHDESK_API_KEY"`
	FreshdeskMaxPages   int           `mapstructure:"FRESHDESK_MAX_PAGES"`
	FreshdeskPushDelay  time.Duration `mapstructure:"FRESHDESK_PUSH_DELAY"`
	AutoRefreshInterval time.Duration `mapstructure:"AUTO_REFRESH_INTERVAL"`

	BookingSecret          string `mapstructure:"BOOKING_SECRET"`
	BookingBaseURL         string `mapstructure:"BOOKING_BASE_URL"`
	RazorpayWebhookSecret  string `mapstructure:"RAZORPAY_WEBHOOK_SECRET"`
	FreshdeskWebhookSecret string `mapstructure:"FRESHDESK_WEBHOOK_SECRET"`

	AMQPURL string `mapstructure:"AMQP_URL"`

	MailHost string `mapstructure:"MAIL_HOST"`
	MailPort int    `mapstructure:"MAIL_PORT"`
	MailUser string `mapstructure:"MAIL_USER"`
	MailPass string `mapstructure:"MAIL_PASS"`
	MailFrom string `mapstructure:"MAIL_FROM"`

	ConsultantsFile       string        `mapstructure:"CONSULTANTS_FILE"`
	OverrideFlushInterval time.Duration `mapstructure:"OVERRIDE_FLUSH_INTERVAL"`
	OverrideFlushMax      int           `mapstructure:"OVERRIDE_FLUSH_MAX"`

	PackageIndianPrice float64 `mapstructure:"PACKAGE_INDIAN_PRICE"`
	PackageIntlPrice   float64 `mapstructure:"PACKAGE_INTL_PRICE"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("FRESHDESK_MAX_PAGES", 3)
	v.SetDefault("FRESHDESK_PUSH_DELAY", "200ms")
	v.SetDefault("AUTO_REFRESH_INTERVAL", "10m")
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("OVERRIDE_FLUSH_INTERVAL", "2s")
	v.SetDefault("OVERRIDE_FLUSH_MAX", 50)
	v.SetDefault("PACKAGE_INDIAN_PRICE", 11999)
	v.SetDefault("PACKAGE_INTL_PRICE", 249)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, k := range []string{
		"DATABASE_URL", "ADMIN_KEY", "REDIS_ADDR", "REDIS_PASSWORD",
		"FRESHDESK_DOMAIN", "FRESHDESK_API_KEY", "BOOKING_SECRET", "BOOKING_BASE_URL",
		"RAZORPAY_WEBHOOK_SECRET", "FRESHDESK_WEBHOOK_SECRET", "AMQP_URL",
		"MAIL_HOST", "MAIL_USER", "MAIL_PASS", "MAIL_FROM", "CONSULTANTS_FILE",
	} {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.FreshdeskMaxPages = clamp(cfg.FreshdeskMaxPages, 1, 10)
	return cfg, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// DefaultConsultants is the roster used when no CONSULTANTS_FILE is set.
func DefaultConsultants() []models.Consultant {
	return []models.Consultant{
		{Name: "Vandana", FullName: "Vandana Pradhan", Email: "vandana@bookleafpub.in", Active: true},
		{Name: "Sapna", FullName: "Sapna Kumari", Email: "sapna@bookleafpub.in", Active: true},
		{Name: "Tannu", FullName: "Tannu Tiwari", Email: "tannu@bookleafpub.in", Active: true},
		{Name: "Roosha", FullName: "Roosha", Email: "roosha@bookleafpub.in", Active: true},
		{Name: "Firdaus", FullName: "Firdaus", Email: "", Active: false},
	}
}

type rosterFile struct {
	Consultants []models.Consultant `yaml:"consultants"`
}

// LoadConsultants reads the roster from a YAML file. An empty path yields
// the built-in roster. Order in the file is round-robin order.
func LoadConsultants(path string) ([]models.Consultant, error) {
	if path == "" {
		return DefaultConsultants(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read consultants file: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse consultants file: %w", err)
	}
	if len(f.Consultants) == 0 {
		return nil, fmt.Errorf("consultants file %s: no consultants", path)
	}
	seen := make(map[string]bool, len(f.Consultants))
	for i := range f.Consultants {
		c := &f.Consultants[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		if c.Name == "" {
			return nil, fmt.Errorf("consultant %d: name is required", i)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return nil, fmt.Errorf("consultant %q listed twice", c.Name)
		}
		seen[key] = true
		if c.FullName == "" {
			c.FullName = c.Name
		}
	}
	return f.Consultants, nil
}
