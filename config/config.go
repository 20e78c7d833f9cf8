package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Most values have simple defaults suitable for local use.
type Config struct {
	ServerAddr  string // Listen address for the HTTP server, e.g. ":8080"
	DataDir     string // Directory holding the flat-file document stores
	StaticDir   string // Root directory for serving the web UI
	YTDLPPath   string // Path to the yt-dlp executable
	CookieFile  string // Cookie file handed to yt-dlp; stripped on fallback retry
	SearchLimit int    // Maximum number of search results per query
	// 存储后端: file 或 redis
	StoreBackend string
	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// 日志配置
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		DataDir:      getEnv("DATA_DIR", "data"),
		StaticDir:    getEnv("STATIC_DIR", filepath.Join("web", "ui")),
		YTDLPPath:    getEnv("YTDLP_PATH", "yt-dlp"),
		CookieFile:   getEnv("COOKIE_FILE", "cookies.txt"),
		SearchLimit:  getEnvInt("SEARCH_LIMIT", 10),
		StoreBackend: getEnv("STORE_BACKEND", "file"),
		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", ""),
	}
}
