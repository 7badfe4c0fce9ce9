package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort            string
	JWTKey             []byte
	JWTExp             time.Duration
	AuthCookieName     string
	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
	LogOutput string

	StoreDriver string // postgres | memory
	SeedFile    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LeaderboardCacheTTL time.Duration
	TeamLockBackend     string // local | redis
	TeamLockTTLSeconds  int

	RunnerLanguage         string
	RunnerWorkRoot         string
	RunnerTimeLimit        time.Duration
	RunnerMemoryLimitMB    int
	RunnerOutputLimitKB    int
	RunnerIsolateNamespace bool
	RunnerAllowUnisolated  bool
	RunnerMaxProcesses     int
	RunnerCgroupRoot       string
	HarnessParallelism     int

	ScoreRetryLimit int

	KafkaBrokers         []string
	KafkaSubmissionTopic string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		JWTKey:             []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:             time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		AuthCookieName:     getEnv("AUTH_COOKIE_NAME", "codenvibe_token"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		SeedFile:    getEnv("SEED_FILE", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "codenvibe"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		LeaderboardCacheTTL: getEnvAsDuration("LEADERBOARD_CACHE_TTL", 10*time.Minute),
		TeamLockBackend:     getEnv("TEAM_LOCK_BACKEND", "local"),
		TeamLockTTLSeconds:  getEnvAsInt("TEAM_LOCK_TTL_SECONDS", 30),

		RunnerLanguage:         getEnv("RUNNER_LANGUAGE", "python"),
		RunnerWorkRoot:         getEnv("RUNNER_WORK_ROOT", os.TempDir()),
		RunnerTimeLimit:        getEnvAsDuration("RUNNER_TIME_LIMIT", 2*time.Second),
		RunnerMemoryLimitMB:    getEnvAsInt("RUNNER_MEMORY_LIMIT_MB", 256),
		RunnerOutputLimitKB:    getEnvAsInt("RUNNER_OUTPUT_LIMIT_KB", 64),
		RunnerIsolateNamespace: getEnvAsBool("RUNNER_ISOLATE_NAMESPACES", true),
		RunnerAllowUnisolated:  getEnvAsBool("RUNNER_ALLOW_UNISOLATED", false),
		RunnerMaxProcesses:     getEnvAsInt("RUNNER_MAX_PROCESSES", 64),
		RunnerCgroupRoot:       getEnv("RUNNER_CGROUP_ROOT", ""),
		HarnessParallelism:     getEnvAsInt("HARNESS_PARALLELISM", 4),

		ScoreRetryLimit: getEnvAsInt("SCORE_RETRY_LIMIT", 5),

		KafkaBrokers:         getEnvAsList("KAFKA_BROKERS", nil),
		KafkaSubmissionTopic: getEnv("KAFKA_SUBMISSION_TOPIC", "codenvibe.submissions"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("1500ms", "2s") or a bare
// number of milliseconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
