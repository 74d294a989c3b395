package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	sopErrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

func TestUnknownSopError(t *testing.T) {
	err := &sopErrors.UnknownSopError{Name: "valve-shutdown"}
	assert.Contains(t, err.Error(), "valve-shutdown")
	assert.Equal(t, "unknown_sop", err.ErrorType())
	assert.False(t, err.IsRetryable())
}

func TestCooldownActiveError(t *testing.T) {
	err := &sopErrors.CooldownActiveError{SopName: "demo", RemainingSecs: 12.5}
	assert.Contains(t, err.Error(), "demo")
	assert.Contains(t, err.Error(), "12.5")
	assert.True(t, err.IsRetryable())
}

func TestConcurrencyLimitError(t *testing.T) {
	err := &sopErrors.ConcurrencyLimitError{SopName: "demo", MaxConcurrent: 2}
	assert.Equal(t, "concurrency_limit", err.ErrorType())
	assert.Contains(t, err.Error(), "2")
}

func TestInvalidTransitionError(t *testing.T) {
	err := &sopErrors.InvalidTransitionError{RunID: "run-000001", Reason: "run is terminal"}
	assert.Contains(t, err.Error(), "run-000001")
	assert.Contains(t, err.Error(), "terminal")
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := sopErrors.New("disk full")
	err := &sopErrors.BackendError{Op: "append", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
}

func TestLockPoisonedError(t *testing.T) {
	err := &sopErrors.LockPoisonedError{Component: "sop-engine", Cause: "panic: nil map"}
	assert.Equal(t, "lock_poisoned", err.ErrorType())
	assert.False(t, err.IsRetryable())
}

func TestConfigErrorUnwrap(t *testing.T) {
	cause := sopErrors.New("yaml: line 4: mapping values are not allowed")
	err := &sopErrors.ConfigError{Key: "catalog_dir", Reason: "failed to parse sop definition", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "catalog_dir")
	assert.Equal(t, "config_error", err.ErrorType())
	assert.False(t, err.IsRetryable())
}
