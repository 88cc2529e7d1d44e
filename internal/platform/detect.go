package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "chunkscribe"

func DefaultTempDirFor(goos, homeDir, xdgCacheHome string) (string, error) {
	cacheDir, err := defaultCacheDirFor(goos, homeDir, xdgCacheHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "segments"), nil
}

// ResolveTempDir returns override when set, otherwise the per-user cache
// location. Unsupported platforms fall back to the system temp dir.
func ResolveTempDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	dir, err := DefaultTempDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_CACHE_HOME"))
	if errors.Is(err, errUnsupportedOS) {
		return filepath.Join(os.TempDir(), appName, "segments"), nil
	}
	return dir, err
}

var errUnsupportedOS = errors.New("unsupported OS")

func defaultCacheDirFor(goos, homeDir, xdgCacheHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgCacheHome != "" {
			return filepath.Join(xdgCacheHome, appName), nil
		}
		return filepath.Join(homeDir, ".cache", appName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches", appName), nil
	default:
		return "", fmt.Errorf("%w: %s", errUnsupportedOS, goos)
	}
}
