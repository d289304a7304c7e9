package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// NoRetry runs every operation exactly once
func NoRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 1}
}

var retryableErrnos = map[syscall.Errno]bool{
	syscall.EAGAIN:       true,
	syscall.ETIMEDOUT:    true,
	syscall.ECONNRESET:   true,
	syscall.ECONNABORTED: true,
	syscall.ECONNREFUSED: true,
	syscall.ENETDOWN:     true,
	syscall.ENETUNREACH:  true,
	syscall.EHOSTDOWN:    true,
	syscall.EHOSTUNREACH: true,
	syscall.EIO:          true,
	syscall.EBUSY:        true,
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"network is unreachable",
	"temporary failure",
	"resource temporarily unavailable",
	"i/o error",
	"too many open files",
}

// IsRetryableError reports whether err is a transient filesystem failure.
// Missing files, permission problems and conflicts are never retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrPermission) || errors.Is(err, ErrConflict) {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return retryableErrnos[errno]
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryWithBackoff executes a function with exponential backoff retry logic
// Returns the result of the function or the final error after all retries exhausted
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	wait := cfg.InitialWait

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, attempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == attempts {
			break
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, attempts, wait, err)
		time.Sleep(wait)

		wait *= 2
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	if attempts == 1 {
		return result, err
	}
	WarnLog("Retry: %s failed after %d attempts: %v", operationName, attempts, err)
	return result, fmt.Errorf("max retries exceeded (%d attempts): %w", attempts, err)
}

// Retry executes a function with retry logic (no return value)
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// RetryableOpen opens a file on fsys with retry logic
func RetryableOpen(fsys afero.Fs, path string, cfg *RetryConfig) (afero.File, error) {
	return RetryWithBackoff(cfg, func() (afero.File, error) {
		return fsys.Open(path)
	}, fmt.Sprintf("open(%s)", path))
}

// RetryableCreate creates a file on fsys with retry logic
func RetryableCreate(fsys afero.Fs, path string, cfg *RetryConfig) (afero.File, error) {
	return RetryWithBackoff(cfg, func() (afero.File, error) {
		return fsys.Create(path)
	}, fmt.Sprintf("create(%s)", path))
}

// RetryableStat stats a file on fsys with retry logic
func RetryableStat(fsys afero.Fs, path string, cfg *RetryConfig) (fs.FileInfo, error) {
	return RetryWithBackoff(cfg, func() (fs.FileInfo, error) {
		return fsys.Stat(path)
	}, fmt.Sprintf("stat(%s)", path))
}

// RetryableRemove removes a file on fsys with retry logic
func RetryableRemove(fsys afero.Fs, path string, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return fsys.Remove(path)
	}, fmt.Sprintf("remove(%s)", path))
}

// RetryableRename renames a file on fsys with retry logic
func RetryableRename(fsys afero.Fs, oldpath, newpath string, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return fsys.Rename(oldpath, newpath)
	}, fmt.Sprintf("rename(%s -> %s)", oldpath, newpath))
}

// RetryableMkdirAll creates a directory on fsys with retry logic
func RetryableMkdirAll(fsys afero.Fs, path string, perm os.FileMode, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return fsys.MkdirAll(path, perm)
	}, fmt.Sprintf("mkdir(%s)", path))
}
