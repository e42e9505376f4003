package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
	BackendStore     = "store"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendMySQL     = "mysql"

	AuthModeFirebase = "firebase"
	AuthModeHeader   = "header"
)

type Config struct {
	ServerPort  string
	Environment string
	AuthMode    string

	FirebaseProject            string
	FirebaseServiceAccountJSON string
	FirebaseServiceAccountPath string
	StorageBucket              string

	StoreBackend    string
	PresenceBackend string
	RedisURL        string
	TicketStore     string
	TicketDBDSN     string

	SupportAgentID        string
	SupportAgentName      string
	SupportAgentIDs       []string
	PresenceStaleAfter    time.Duration
	CascadeDeleteMessages bool
	MaxUploadBytes        int64
	AllowedOrigins        []string
	PresenceHeartbeat     time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	supportID := getEnv("SUPPORT_AGENT_ID", "support")

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AuthMode:    getEnv("AUTH_MODE", AuthModeFirebase),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StorageBucket:              getEnv("STORAGE_BUCKET", ""),

		StoreBackend:    getEnv("STORE_BACKEND", BackendFirestore),
		PresenceBackend: getEnv("PRESENCE_BACKEND", BackendStore),
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		TicketStore:     getEnv("TICKET_STORE", BackendStore),
		TicketDBDSN:     getEnv("TICKET_DB_DSN", ""),

		SupportAgentID:        supportID,
		SupportAgentName:      getEnv("SUPPORT_AGENT_NAME", "Support"),
		SupportAgentIDs:       getEnvAsList("SUPPORT_AGENT_IDS", []string{supportID}),
		PresenceStaleAfter:    getEnvAsDuration("PRESENCE_STALE_AFTER", 0),
		CascadeDeleteMessages: getEnvAsBool("CASCADE_DELETE_MESSAGES", false),
		MaxUploadBytes:        getEnvAsInt64("MAX_UPLOAD_BYTES", 10*1024*1024), // 10 MB
		AllowedOrigins:        getEnvAsList("WS_ALLOWED_ORIGINS", nil),
		PresenceHeartbeat:     getEnvAsDuration("PRESENCE_HEARTBEAT", time.Minute),
	}

	return config, nil
}

// UsesFirebase reports whether any configured component needs a Firebase app.
func (c *Config) UsesFirebase() bool {
	return c.StoreBackend == BackendFirestore || c.AuthMode == AuthModeFirebase || c.StorageBucket != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
