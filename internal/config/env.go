package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// APIKeyEnv supplies the node credential from the environment.
const APIKeyEnv = "MYRIA_API_KEY"

// LoadEnv loads .env then .env.dev from the working directory when present.
// Later files override earlier ones; missing files are skipped.
func LoadEnv(logger logrus.FieldLogger) {
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
		return
	}
	logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
}

// APIKeyFromEnv returns the trimmed MYRIA_API_KEY value, or "".
func APIKeyFromEnv() string {
	return strings.TrimSpace(os.Getenv(APIKeyEnv))
}
