package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// GameServer describes one backend of the game-server fleet
type GameServer struct {
	Name   string
	Realm  string // empty for realm-less backends (proxy/lobby)
	APIURL string
}

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Stripe configuration
	StripeSecretKey     string
	StripeWebhookSecret string
	ShopSuccessURL      string
	ShopCancelURL       string

	// Admin configuration
	AdminAPIKey string

	// Game-server fleet configuration
	GameServers        []GameServer
	GameServerAPIKey   string
	ApplyRetryAttempts int
	ApplyRetryBaseWait time.Duration

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string
	OperatorEmail  string

	// Pending purchase monitoring
	PendingStaleAfter    time.Duration
	PendingSweepInterval time.Duration
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		ShopSuccessURL:       getEnv("SHOP_SUCCESS_URL", "http://localhost:3000/shop/success"),
		ShopCancelURL:        getEnv("SHOP_CANCEL_URL", "http://localhost:3000/shop"),
		AdminAPIKey:          getEnv("ADMIN_API_KEY", ""),
		GameServers:          loadGameServers(),
		GameServerAPIKey:     getEnv("MINECRAFT_SERVER_API_KEY", ""),
		ApplyRetryAttempts:   getEnvInt("APPLY_RETRY_ATTEMPTS", 3),
		ApplyRetryBaseWait:   getEnvDuration("APPLY_RETRY_BASE_WAIT", time.Second),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:       getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:        getEnv("BREVO_FROM_NAME", "Rank Shop"),
		OperatorEmail:        getEnv("OPERATOR_EMAIL", ""),
		PendingStaleAfter:    getEnvDuration("PENDING_STALE_AFTER", time.Hour),
		PendingSweepInterval: getEnvDuration("PENDING_SWEEP_INTERVAL", 10*time.Minute),
	}

	return nil
}

// loadGameServers builds the fleet from environment variables.
// Each backend exposes the plugin API on its own port; the towny backend
// is the only realm-specific one.
func loadGameServers() []GameServer {
	proxyHost := getEnv("MINECRAFT_PROXY_HOST", "localhost")

	apiURL := func(hostKey, fallbackHost, portKey, defaultPort string) string {
		host := getEnv(hostKey, fallbackHost)
		port := getEnv(portKey, defaultPort)
		return "http://" + host + ":" + port
	}

	return []GameServer{
		{
			Name:   "proxy",
			APIURL: apiURL("MINECRAFT_PROXY_HOST", "localhost", "MINECRAFT_PROXY_API_PORT", "8113"),
		},
		{
			Name:   "lobby",
			APIURL: apiURL("MINECRAFT_LOBBY_HOST", proxyHost, "MINECRAFT_LOBBY_API_PORT", "8090"),
		},
		{
			Name:   "survival",
			APIURL: apiURL("MINECRAFT_SURVIVAL_HOST", proxyHost, "MINECRAFT_SURVIVAL_API_PORT", "8137"),
		},
		{
			Name:   "towny",
			Realm:  "towny",
			APIURL: apiURL("MINECRAFT_TOWNY_HOST", proxyHost, "MINECRAFT_TOWNY_API_PORT", "8152"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
