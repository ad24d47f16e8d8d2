package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config regroupe toute la configuration du service, lue une seule fois au démarrage.
type Config struct {
	Port           string
	StoreDriver    string // "postgres" ou "memory"
	AllowedOrigins []string

	PostgresDSN string

	Redis    RedisConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	JWT      JWTConfig
	Scylla   ScyllaConfig
	Kafka    KafkaConfig
	MinIO    MinIOConfig
	SMTP     SMTPConfig
}

type RedisConfig struct {
	Addr     string
	Password string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// CheckoutConfig pilote la session hébergée et la réservation de stock associée.
type CheckoutConfig struct {
	SuccessURL       string
	CancelURL        string
	AllowedCountries []string
	ReservationTTL   time.Duration
	ReservationGrace time.Duration
	SweepInterval    time.Duration
	CartRateLimit    int
	CartRateWindow   time.Duration
}

type JWTConfig struct {
	Secret string
}

type ScyllaConfig struct {
	Hosts      []string
	Keyspace   string
	Username   string
	Password   string
	SSLEnabled bool
	CACertPath string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load charge le fichier .env s'il existe puis lit les variables d'environnement.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv construit la configuration sans la valider.
func FromEnv() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		},
		Checkout: CheckoutConfig{
			SuccessURL:       getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:        getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/cart"),
			AllowedCountries: splitList(getEnv("CHECKOUT_ALLOWED_COUNTRIES", "US,CA,GB,FR,DE,BE")),
			ReservationTTL:   getDuration("CHECKOUT_RESERVATION_TTL", 35*time.Minute),
			ReservationGrace: getDuration("CHECKOUT_RESERVATION_GRACE", 5*time.Minute),
			SweepInterval:    getDuration("CHECKOUT_SWEEP_INTERVAL", time.Minute),
			CartRateLimit:    getInt("CART_RATE_LIMIT", 20),
			CartRateWindow:   getDuration("CART_RATE_WINDOW", time.Minute),
		},
		JWT: JWTConfig{Secret: os.Getenv("JWT_SECRET")},
		Scylla: ScyllaConfig{
			Hosts:      splitList(os.Getenv("SCYLLA_HOSTS")),
			Keyspace:   getEnv("SCYLLA_KS_ORDERS_KEYSPACE", "vitrine_orders"),
			Username:   os.Getenv("SCYLLA_KS_ORDERS_ROLE"),
			Password:   os.Getenv("SCYLLA_KS_ORDERS_PASSWORD"),
			SSLEnabled: strings.ToLower(os.Getenv("SCYLLA_SSL_ENABLED")) == "true",
			CACertPath: os.Getenv("SCYLLA_SSL_CA_PATH"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_ORDER_TOPIC", "order.created"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "products"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
			URLExpiry: getDuration("MINIO_URL_EXPIRY", 24*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", "no-reply@vitrine.local"),
		},
	}
}

// Validate refuse de démarrer sans les secrets indispensables.
func (c *Config) Validate() error {
	var errs []error
	if c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY manquant"))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET manquant"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET manquant"))
	}
	switch c.StoreDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN manquant"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER inconnu: %q", c.StoreDriver))
	}
	if c.Checkout.ReservationTTL < 30*time.Minute {
		errs = append(errs, errors.New("CHECKOUT_RESERVATION_TTL doit être d'au moins 30m"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %d utilisée", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %s utilisée", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
