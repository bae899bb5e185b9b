package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatterbox/internal/config"
)

// ConfigForTests loads .env.test from the project root into the test's
// environment, if the file exists, and returns the resulting config.
func ConfigForTests(t *testing.T) *config.Config {
	t.Helper()

	path, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			break
		}
		if path == filepath.Dir(path) {
			t.Fatalf("could not find project root with go.mod")
		}
		path = filepath.Dir(path)
	}

	env, err := godotenv.Read(filepath.Join(path, ".env.test"))
	if err == nil {
		for key, value := range env {
			t.Setenv(key, value)
		}
	}

	return config.FromEnv()
}
