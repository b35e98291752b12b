package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig describes a statically registered OAuth client.
type ClientConfig struct {
	ID           string
	RedirectURIs []string
}

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	IssuerURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleAuthURL      string
	GoogleTokenURL     string
	GoogleUserInfoURL  string

	SigningKeyPEM       string
	SigningKeyFile      string
	SigningKeyID        string
	RetiredKeyFiles     []string

	AccessTokenTTL    time.Duration
	AuthCodeTTL       time.Duration
	PendingRequestTTL time.Duration

	Clients []ClientConfig

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Authorization codes must never outlive two minutes regardless of configuration.
const maxAuthCodeTTL = 120 * time.Second

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	googleClientID := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID"))
	if googleClientID == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	googleClientSecret := strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET"))
	if googleClientSecret == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	googleRedirectURI := strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URI"))
	if googleRedirectURI == "" {
		return Config{}, fmt.Errorf("GOOGLE_REDIRECT_URI is required")
	}
	issuer := strings.TrimRight(strings.TrimSpace(os.Getenv("ISSUER_URL")), "/")
	if issuer == "" {
		return Config{}, fmt.Errorf("ISSUER_URL is required")
	}

	clients, err := ParseClients(os.Getenv("CLIENTS"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "forgetful-auth"),

		IssuerURL: issuer,

		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		GoogleRedirectURI:  googleRedirectURI,
		GoogleAuthURL:      getEnv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
		GoogleTokenURL:     getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		GoogleUserInfoURL:  getEnv("GOOGLE_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),

		SigningKeyPEM:   os.Getenv("SIGNING_KEY"),
		SigningKeyFile:  strings.TrimSpace(os.Getenv("SIGNING_KEY_FILE")),
		SigningKeyID:    strings.TrimSpace(os.Getenv("SIGNING_KEY_ID")),
		RetiredKeyFiles: getList("SIGNING_KEY_RETIRED_FILES", nil),

		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		AuthCodeTTL:       getDuration("AUTH_CODE_TTL", 60*time.Second),
		PendingRequestTTL: getDuration("PENDING_REQUEST_TTL", 10*time.Minute),

		Clients: clients,

		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if len(cfg.Clients) == 0 && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("CLIENTS is required when DATABASE_URL is not set")
	}

	if cfg.AuthCodeTTL > maxAuthCodeTTL {
		cfg.AuthCodeTTL = maxAuthCodeTTL
	}

	return cfg, nil
}

// ParseClients decodes the CLIENTS env format:
// "client_id|https://a/cb;https://b/cb,other_client|https://c/cb".
func ParseClients(raw string) ([]ClientConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var clients []ClientConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("CLIENTS entry %q must be client_id|redirect_uri[;redirect_uri]", entry)
		}
		var uris []string
		for _, uri := range strings.Split(parts[1], ";") {
			if trimmed := strings.TrimSpace(uri); trimmed != "" {
				uris = append(uris, trimmed)
			}
		}
		if len(uris) == 0 {
			return nil, fmt.Errorf("CLIENTS entry %q has no redirect URIs", entry)
		}
		clients = append(clients, ClientConfig{ID: strings.TrimSpace(parts[0]), RedirectURIs: uris})
	}
	return clients, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
