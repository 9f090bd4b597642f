package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the API needs from the environment.
type Config struct {
	ListenAddr string
	DBPath     string

	StripeAPIKey        string
	StripeWebhookSecret string

	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string

	// AllowedEmails is the externally managed allow-list for the portal API.
	// The webhook endpoint is not gated by it; its auth is the Stripe
	// signature.
	AllowedEmails []string

	// StoreTimeout bounds every database write triggered by a webhook so a
	// wedged store turns into a retryable failure instead of a hung call.
	StoreTimeout time.Duration
}

// Load reads a .env file when present (ignored in production, where the vars
// come from the real environment) and builds the Config.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:          getenv("LISTEN_ADDR", ":8080"),
		DBPath:              getenv("DB_PATH", "./billing.db"),
		StripeAPIKey:        os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/dashboard"),
		PortalReturnURL:     getenv("PORTAL_RETURN_URL", "http://localhost:3000/dashboard"),
		AllowedEmails:       splitList(os.Getenv("ALLOWED_EMAILS")),
		StoreTimeout:        getduration("STORE_TIMEOUT", 5*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
