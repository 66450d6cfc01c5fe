// Package secrets resolves credentials from environment references and
// mounted secret files so they need not be written into config.yaml.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
)

const (
	// secret files hold tokens and passwords, not documents
	maxSecretFileSize = 64 * 1024

	// group and other permission bits that trigger a warning
	permissiveBits = 0o077
)

func newError(format string, args ...any) *errors.ErrorBuilder {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryConfiguration)
}

// ExpandString expands ${VAR} and ${VAR:-default} references in s.
// A reference without a default to an unset variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})

	if len(missing) > 0 {
		return "", newError("missing required environment variable(s): %s", strings.Join(missing, ", ")).Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from a file such as /run/secrets/mqtt_password.
// Trailing newlines are trimmed; an empty file is an error.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", newError("secret file path is empty").Build()
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", newError("secret path is not a regular file: %s", clean).Build()
	}
	if info.Size() > maxSecretFileSize {
		return "", newError("secret file too large (max %d bytes): %s", maxSecretFileSize, clean).Build()
	}
	if perm := info.Mode().Perm(); perm&permissiveBits != 0 {
		logger.Global().Module("conf").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", newError("secret file is empty: %s", clean).Build()
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// MustResolve is Resolve for secrets that are required.
func MustResolve(field, filePath, value string) (string, error) {
	secret, err := Resolve(filePath, value)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", newError("%s is required but not provided", field).Build()
	}
	return secret, nil
}
