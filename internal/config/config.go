package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	CORSAllowedOrigins []string

	// Remote hospital API
	HospitalAPIBaseURL string
	HospitalAPITimeout time.Duration

	// State stores
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string
	DraftTTL      time.Duration
	SessionTTL    time.Duration

	// Fees are in minor currency units.
	ConsultationFeeMinor int64
	ServiceChargeMinor   int64
	Currency             string

	// Checkout
	PaymentProvider     string
	AllowFakePayments   bool
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	// Teleconsultation
	CallTokenSecret   string
	CallTokenTTL      time.Duration
	CallAutoReject    time.Duration
	CallAcceptTimeout time.Duration

	// Auth endpoint throttling
	AuthRateLimit float64
	AuthRateBurst int

	// Receipts
	EmailProvider       string
	SendGridAPIKey      string
	EmailFromAddress    string
	EmailFromName       string
	SESConfigurationSet string
	ReceiptBucket       string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables. A local .env file is
// honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		HospitalAPIBaseURL: strings.TrimRight(getEnv("HOSPITAL_API_BASE_URL", ""), "/"),
		HospitalAPITimeout: getEnvAsDuration("HOSPITAL_API_TIMEOUT", 15*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DraftTTL:      getEnvAsDuration("DRAFT_TTL", 24*time.Hour),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),

		ConsultationFeeMinor: getEnvAsInt64("CONSULTATION_FEE_MINOR", 50000),
		ServiceChargeMinor:   getEnvAsInt64("SERVICE_CHARGE_MINOR", 5000),
		Currency:             strings.ToLower(getEnv("CURRENCY", "inr")),

		PaymentProvider:     strings.ToLower(strings.TrimSpace(getEnv("PAYMENT_PROVIDER", "stripe"))),
		AllowFakePayments:   getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", ""),

		CallTokenSecret:   getEnv("CALL_TOKEN_SECRET", ""),
		CallTokenTTL:      getEnvAsDuration("CALL_TOKEN_TTL", time.Hour),
		CallAutoReject:    getEnvAsDuration("CALL_AUTO_REJECT", 30*time.Second),
		CallAcceptTimeout: getEnvAsDuration("CALL_ACCEPT_TIMEOUT", 45*time.Second),

		AuthRateLimit: getEnvAsFloat("AUTH_RATE_LIMIT", 5),
		AuthRateBurst: getEnvAsInt("AUTH_RATE_BURST", 10),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Patient Portal"),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		ReceiptBucket:       getEnv("RECEIPT_BUCKET", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
