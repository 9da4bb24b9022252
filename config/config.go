package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values. Secrets must come
// from the config file or the environment, never from code defaults.
type AppConfig struct {
	AppPort string
	GinMode string
	GinPath string

	// Database. Driver is "sqlite" (single file, WAL) or "mysql".
	DBDriver    string
	DBPath      string // sqlite file path
	DatabaseURI string // full DSN, overrides the discrete fields below
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Uploaded attachment blobs live here and are served from /uploads.
	UploadDir string

	// Session store. Backend is "db" or "redis". TTLHours 0 keeps tokens
	// valid until logout.
	SessionBackend  string
	SessionTTLHours int
	JWTSecret       string // required for the redis backend only

	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string

	RateLimitPerMinute int
	AllowedOrigins     []string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load reads configuration once during boot. Precedence:
// config/config.json -> defaults -> environment overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// loadJSONConfig reads a grouped JSON file into out if present. A missing
// file is not an error; invalid JSON is.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		switch t := m[key].(type) {
		case float64:
			return int(t)
		case int:
			return t
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "Port")
		out.UploadDir = getString(app, "UploadDir")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}
	if db, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(db, "Driver")
		out.DBPath = getString(db, "Path")
		out.DatabaseURI = getString(db, "DatabaseURI")
		out.DBHost = getString(db, "Host")
		out.DBPort = getString(db, "Port")
		out.DBUser = getString(db, "User")
		out.DBPassword = getString(db, "Password")
		out.DBName = getString(db, "Name")
	}
	if s, ok := raw["session"].(map[string]any); ok {
		out.SessionBackend = getString(s, "Backend")
		out.SessionTTLHours = getInt(s, "TTLHours")
		out.JWTSecret = getString(s, "JWTSecret")
	}
	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "Host")
		if v := getInt(rds, "Port"); v != 0 {
			out.RedisPort = v
		}
		out.RedisDB = getInt(rds, "DB")
		out.RedisPassword = getString(rds, "Password")
	}
	if oa, ok := raw["oauth"].(map[string]any); ok {
		out.GitHubClientID = getString(oa, "GitHubClientID")
		out.GitHubClientSecret = getString(oa, "GitHubClientSecret")
		out.GoogleClientID = getString(oa, "GoogleClientID")
		out.GoogleClientSecret = getString(oa, "GoogleClientSecret")
		out.OAuthRedirectBase = getString(oa, "RedirectBase")
	}
	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.GinPath = getString(lg, "GinPath")
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}
	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "3000"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.DBPath == "" {
		c.DBPath = "database.sqlite"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "board2"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.SessionBackend == "" {
		c.SessionBackend = "db"
	}
	if c.RedisHost == "" && c.SessionBackend == "redis" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:3000"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when set.
func applyEnvOverrides(c *AppConfig) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr("APP_PORT", &c.AppPort)
	setStr("GIN_MODE", &c.GinMode)
	setStr("GIN_PATH", &c.GinPath)
	setStr("DB_DRIVER", &c.DBDriver)
	setStr("DB_PATH", &c.DBPath)
	setStr("DATABASE_URI", &c.DatabaseURI)
	setStr("DB_HOST", &c.DBHost)
	setStr("DB_PORT", &c.DBPort)
	setStr("DB_USER", &c.DBUser)
	setStr("DB_PASSWORD", &c.DBPassword)
	setStr("DB_NAME", &c.DBName)
	setStr("UPLOAD_DIR", &c.UploadDir)
	setStr("SESSION_BACKEND", &c.SessionBackend)
	setInt("SESSION_TTL_HOURS", &c.SessionTTLHours)
	setStr("JWT_SECRET", &c.JWTSecret)
	setStr("REDIS_HOST", &c.RedisHost)
	setInt("REDIS_PORT", &c.RedisPort)
	setInt("REDIS_DB", &c.RedisDB)
	setStr("REDIS_PASSWORD", &c.RedisPassword)
	setStr("GITHUB_CLIENT_ID", &c.GitHubClientID)
	setStr("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	setStr("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	setStr("GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	setStr("OAUTH_REDIRECT_BASE_URL", &c.OAuthRedirectBase)
	setInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	setStr("LOG_LEVEL", &c.LogLevel)
	setStr("LOG_PATH", &c.LogPath)
	setInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	if v := os.Getenv("LOG_COMPRESS"); v != "" {
		c.LogCompress = v == "true"
	}
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
