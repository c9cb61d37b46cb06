package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Pricing configuration
	Pricing PricingConfig

	// Card gateway configuration
	Card CardConfig

	// Wallet gateway configuration
	Wallet WalletConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PricingConfig holds the marketplace fee and tax rates
type PricingConfig struct {
	FeeRate  decimal.Decimal // marketplace fee as a fraction of the base price
	TaxRate  decimal.Decimal // tax as a fraction of the subtotal
	Currency string
}

// CardConfig holds Stripe card gateway configuration
type CardConfig struct {
	SecretKey     string // Stripe secret key (SECRET - never expose to client)
	WebhookSecret string // Stripe webhook signing secret
	ReturnURL     string // URL the client is sent back to after 3DS
}

// WalletConfig holds the tokenized wallet gateway configuration
type WalletConfig struct {
	BaseURL     string
	AppKey      string
	AppSecret   string // wallet app secret (SECRET - never expose to client)
	Username    string
	Password    string
	CallbackURL string // server webhook URL for wallet payment notifications
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Pricing: PricingConfig{
			FeeRate:  getEnvAsDecimal("PRICING_FEE_RATE", "0.05"),
			TaxRate:  getEnvAsDecimal("PRICING_TAX_RATE", "0.10"),
			Currency: getEnv("PRICING_CURRENCY", "usd"),
		},
		Card: CardConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			ReturnURL:     getEnv("STRIPE_RETURN_URL", ""),
		},
		Wallet: WalletConfig{
			BaseURL:     getEnv("WALLET_BASE_URL", "https://tokenized.sandbox.bka.sh/v1.2.0-beta"),
			AppKey:      getEnv("WALLET_APP_KEY", ""),
			AppSecret:   getEnv("WALLET_APP_SECRET", ""),
			Username:    getEnv("WALLET_USERNAME", ""),
			Password:    getEnv("WALLET_PASSWORD", ""),
			CallbackURL: getEnv("WALLET_CALLBACK_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Pricing.FeeRate.IsNegative() {
		return fmt.Errorf("PRICING_FEE_RATE must not be negative")
	}

	if c.Pricing.TaxRate.IsNegative() {
		return fmt.Errorf("PRICING_TAX_RATE must not be negative")
	}

	// Gateway credentials are only enforced outside development so that
	// local runs can exercise the booking flow without live keys.
	if c.Server.Environment == "production" {
		if c.Card.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
		}

		if c.Card.WebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}

		if c.Wallet.AppKey == "" || c.Wallet.AppSecret == "" {
			return fmt.Errorf("WALLET_APP_KEY and WALLET_APP_SECRET are required in production")
		}

		if c.Wallet.Username == "" || c.Wallet.Password == "" {
			return fmt.Errorf("WALLET_USERNAME and WALLET_PASSWORD are required in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Printf("Invalid decimal value for %s, using default: %s", key, defaultValue)
		return decimal.RequireFromString(defaultValue)
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
