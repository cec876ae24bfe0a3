package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var portCmd = flag.Int("port", 3000, "HTTP server port")

type Config struct {
	ServerPort          int
	DataDirectory       string
	LockTimeoutMillis   int
	CheckpointThreshold int64
	CommitFeedBind      string
	CommitFeeds         []string
}

func LoadConfig() Config {
	godotenv.Load(".env")
	return Config{
		ServerPort:          *portCmd,
		DataDirectory:       os.Getenv("DATA_DIRECTORY"),
		LockTimeoutMillis:   envInt("LOCK_TIMEOUT_MS", 2500),
		CheckpointThreshold: envInt64("CHECKPOINT_THRESHOLD", 4<<20),
		CommitFeedBind:      os.Getenv("COMMIT_FEED_BIND"),
		CommitFeeds:         envList("COMMIT_FEEDS"),
	}
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
