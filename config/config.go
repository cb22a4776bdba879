// Package config provides configuration management for the storefront service.
// Configuration can be loaded from YAML files and overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"storefront/entity"
)

const (
	sandboxHost = "https://sandbox.payfast.co.za"
	liveHost    = "https://www.payfast.co.za"

	processPath  = "/eng/process"
	validatePath = "/eng/query/validate"
)

// ErrMissingCredentials is returned when the merchant identifier or key is absent.
// Payments can not be signed without them, so there is no fallback.
var ErrMissingCredentials = errors.New("payfast merchant id and merchant key must be set")

// Config holds all configuration for the storefront service.
// Values can be set via YAML configuration file or environment variables.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug bool   `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	BaseUrl string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:3000"`
	Listen  struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5100"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Log   LogConfig `yaml:"log"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:""`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"storefront"`
	} `yaml:"mongo"`
	PayFast struct {
		MerchantId      string        `yaml:"merchant_id" env:"PAYFAST_MERCHANT_ID" env-default:""`
		MerchantKey     string        `yaml:"merchant_key" env:"PAYFAST_MERCHANT_KEY" env-default:""`
		Passphrase      string        `yaml:"passphrase" env:"PAYFAST_PASSPHRASE" env-default:""`
		Sandbox         bool          `yaml:"sandbox" env:"PAYFAST_SANDBOX" env-default:"false"`
		ValidateTimeout time.Duration `yaml:"validate_timeout" env:"PAYFAST_VALIDATE_TIMEOUT" env-default:"15s"`
	} `yaml:"payfast"`
	Commerce struct {
		ApiUrl         string        `yaml:"api_url" env:"WORDPRESS_API_URL" env-default:""`
		SiteUrl        string        `yaml:"site_url" env:"WORDPRESS_URL" env-default:""`
		ConsumerKey    string        `yaml:"consumer_key" env:"CONSUMER_KEY" env-default:""`
		ConsumerSecret string        `yaml:"consumer_secret" env:"CONSUMER_SECRET" env-default:""`
		Timeout        time.Duration `yaml:"timeout" env:"COMMERCE_TIMEOUT" env-default:"30s"`
		UpdateTimeout  time.Duration `yaml:"update_timeout" env:"COMMERCE_UPDATE_TIMEOUT" env-default:"10s"`
	} `yaml:"commerce"`
}

// LogConfig selects level, encoding and destination of service logs.
// File output is rotated.
type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format     string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	Output     string `yaml:"output" env:"LOG_OUTPUT" env-default:"stdout"`
	FilePath   string `yaml:"file_path" env:"LOG_FILE_PATH" env-default:""`
	MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE" env-default:"30"`
	Compress   bool   `yaml:"compress" env:"LOG_COMPRESS" env-default:"true"`
	Colors     bool   `yaml:"colors" env:"LOG_COLORS" env-default:"false"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// A missing file is not an error: values then come from the environment only.
// Before reading, .env.local and .env are loaded into the process environment
// when present, without overriding variables that are already set.
// This function uses a singleton pattern and only loads the config once.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance, err = Load(path)
	})
	return instance, err
}

// Load reads a fresh configuration without touching the singleton.
func Load(path string) (*Config, error) {
	for _, file := range []string{".env.local", ".env"} {
		if _, statErr := os.Stat(file); statErr == nil {
			_ = godotenv.Load(file)
		}
	}

	conf := &Config{}
	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, conf)
	} else {
		err = cleanenv.ReadEnv(conf)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("load config: %w; %s", err, desc)
	}
	return conf, nil
}

// Gateway builds the payment gateway settings for the configured mode.
// It fails when the merchant identifier or key is missing.
func (c *Config) Gateway() (*entity.GatewayConfig, error) {
	merchantId := strings.TrimSpace(c.PayFast.MerchantId)
	merchantKey := strings.TrimSpace(c.PayFast.MerchantKey)
	if merchantId == "" || merchantKey == "" {
		return nil, ErrMissingCredentials
	}

	host := liveHost
	if c.PayFast.Sandbox {
		host = sandboxHost
	}

	return &entity.GatewayConfig{
		MerchantId:  merchantId,
		MerchantKey: merchantKey,
		Passphrase:  c.PayFast.Passphrase,
		Sandbox:     c.PayFast.Sandbox,
		ProcessUrl:  host + processPath,
		ValidateUrl: host + validatePath,
	}, nil
}

// Callbacks derives the three gateway callback URLs from the public base URL.
func (c *Config) Callbacks() entity.CallbackURLs {
	base := strings.TrimRight(c.BaseUrl, "/")
	return entity.CallbackURLs{
		ReturnUrl: base + "/payment/success",
		CancelUrl: base + "/payment/cancel",
		NotifyUrl: base + "/api/payfast/notify",
	}
}
