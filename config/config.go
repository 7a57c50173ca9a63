package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL   = "https://www.reddit.com"
	DefaultUserAgent = "RedditDataPipeline/1.0"
	DefaultLimit     = 100
)

type Config struct {
	// Remote API identity
	BaseURL     string
	UserAgent   string
	AccessToken string
	Headers     map[string]string

	RequestTimeout  time.Duration
	FetchLimit      int
	CommentLimit    int
	Subreddit       string
	IncludeComments bool

	// Output
	OutputPath    string
	Sinks         []string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string

	// Result notifications, disabled when NATSUrl is empty
	NATSUrl       string
	ResultSubject string

	HTTPAddr string
}

// LoadEnv loads .env and .env.dev from the working directory when present.
// Later files override earlier ones.
func LoadEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("No local env files loaded; relying on process environment")
	} else {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

func Load() (*Config, error) {
	timeout, err := getDurationEnv("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	fetchLimit, err := getIntEnv("FETCH_LIMIT", DefaultLimit)
	if err != nil {
		return nil, err
	}
	commentLimit, err := getIntEnv("COMMENT_LIMIT", DefaultLimit)
	if err != nil {
		return nil, err
	}
	includeComments, err := getBoolEnv("INCLUDE_COMMENTS", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:         strings.TrimRight(getEnv("REDDIT_BASE_URL", DefaultBaseURL), "/"),
		UserAgent:       getEnv("REDDIT_USER_AGENT", DefaultUserAgent),
		AccessToken:     getEnv("REDDIT_ACCESS_TOKEN", ""),
		Headers:         parseHeaders(getEnv("REDDIT_EXTRA_HEADERS", "")),
		RequestTimeout:  timeout,
		FetchLimit:      fetchLimit,
		CommentLimit:    commentLimit,
		Subreddit:       getEnv("SUBREDDIT", "dataengineering"),
		IncludeComments: includeComments,
		OutputPath:      getEnv("OUTPUT_PATH", "./data/output"),
		Sinks:           splitList(getEnv("SINKS", "csv")),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/reddit.db"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "redditdb"),
		NATSUrl:         getEnv("NATS_URL", ""),
		ResultSubject:   getEnv("RESULT_SUBJECT", "reddit.pipeline.result"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("REDDIT_BASE_URL must not be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("REDDIT_USER_AGENT must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("FETCH_LIMIT must be positive, got %d", c.FetchLimit)
	}
	if c.CommentLimit <= 0 {
		return fmt.Errorf("COMMENT_LIMIT must be positive, got %d", c.CommentLimit)
	}
	for _, sink := range c.Sinks {
		switch sink {
		case "csv", "sqlite", "mongo":
		default:
			return fmt.Errorf("unknown sink %q in SINKS", sink)
		}
	}
	return nil
}

// GetLogLevel gets the log level from environment
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return intValue, nil
}

func getBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseHeaders reads "Name: value; Other: value" pairs.
func parseHeaders(value string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(value, ";") {
		name, val, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(val)
	}
	return headers
}
