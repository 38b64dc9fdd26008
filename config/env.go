package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads an env file if one is present. ENV_FILE wins; otherwise
// .env.windows/env.windows or .env.linux/env.linux is probed in the current
// directory and then one level up.
func LoadEnv() {
	if p := os.Getenv("ENV_FILE"); p != "" {
		_ = godotenv.Overload(p)
		log.Printf("[env] loaded: %s", p)
		return
	}

	var candidates []string
	if runtime.GOOS == "windows" {
		candidates = []string{".env.windows", "env.windows"}
	} else {
		candidates = []string{".env.linux", "env.linux"}
	}

	for _, p := range candidates {
		if fileExists(p) {
			_ = godotenv.Overload(p)
			log.Printf("[env] loaded: %s", p)
			return
		}
	}

	for _, p := range candidates {
		rootPath := filepath.Join("..", p)
		if fileExists(rootPath) {
			_ = godotenv.Overload(rootPath)
			log.Printf("[env] loaded: %s", rootPath)
			return
		}
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envSec(key string, defSec int) time.Duration {
	n := envInt(key, defSec)
	if n <= 0 {
		n = defSec
	}
	return time.Duration(n) * time.Second
}
