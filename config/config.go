package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	Port        string
	Environment string

	MongoURI     string
	DBName       string
	StoreBackend string

	JWTSecret string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	GeminiAPIKey     string
	GeminiTextModel  string
	GeminiImageModel string

	StorageBackend string
	AWSRegion      string
	AWSBucketName  string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	SendGridAPIKey  string
	NotifyFromEmail string

	QueueBackend string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	QueueWorkers int

	FreeCreditsPerWeek int
	LooksPerBatch      int
	MinInventory       int
	StepMaxRetries     int
)

// LoadConfig loads environment variables from .env file
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default values or system environment variables")
	}

	Port = getEnv("PORT", "8080")
	Environment = getEnv("ENVIRONMENT", "development")

	MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017/")
	DBName = getEnv("DB_NAME", "nima")
	StoreBackend = getEnv("STORE_BACKEND", "mongo")

	JWTSecret = os.Getenv("JWT_SECRET")

	GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback")

	GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	GeminiTextModel = getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash")
	GeminiImageModel = getEnv("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview")

	StorageBackend = getEnv("STORAGE_BACKEND", "s3")
	AWSRegion = getEnv("AWS_REGION", "ap-south-1")
	AWSBucketName = os.Getenv("AWS_BUCKET_NAME")
	S3Endpoint = os.Getenv("S3_ENDPOINT")
	S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	S3SecretKey = os.Getenv("S3_SECRET_KEY")
	SupabaseURL = os.Getenv("SUPABASE_URL")
	SupabaseKey = os.Getenv("SUPABASE_KEY")
	SupabaseBucket = getEnv("SUPABASE_BUCKET", "nima")

	SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	NotifyFromEmail = getEnv("NOTIFY_FROM_EMAIL", "no-reply@nima.app")

	QueueBackend = getEnv("QUEUE_BACKEND", "local")
	KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	KafkaTopic = getEnv("KAFKA_TOPIC", "nima-tasks")
	KafkaGroupID = getEnv("KAFKA_GROUP_ID", "nima-workers")
	QueueWorkers = getEnvInt("QUEUE_WORKERS", 4)

	FreeCreditsPerWeek = getEnvInt("FREE_CREDITS_PER_WEEK", 5)
	LooksPerBatch = getEnvInt("LOOKS_PER_BATCH", 3)
	MinInventory = getEnvInt("MIN_INVENTORY", 4)
	StepMaxRetries = getEnvInt("STEP_MAX_RETRIES", 3)
}

// IsProduction reports whether the server runs with production settings.
func IsProduction() bool {
	return strings.EqualFold(Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s (%q), using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
