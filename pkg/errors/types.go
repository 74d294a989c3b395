// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import "fmt"

// UnknownSopError is returned by StartRun when the requested SOP name is not
// present in the catalogue.
type UnknownSopError struct {
	Name string
}

func (e *UnknownSopError) Error() string {
	return fmt.Sprintf("unknown sop: %s", e.Name)
}

func (e *UnknownSopError) ErrorType() string { return "unknown_sop" }
func (e *UnknownSopError) IsRetryable() bool { return false }

// UnknownRunError is returned by any operation against a missing run_id.
type UnknownRunError struct {
	RunID string
}

func (e *UnknownRunError) Error() string {
	return fmt.Sprintf("unknown run: %s", e.RunID)
}

func (e *UnknownRunError) ErrorType() string { return "unknown_run" }
func (e *UnknownRunError) IsRetryable() bool { return false }

// InvalidTransitionError is returned by advance/approve against a terminal
// or wrong-state run, or when a step result names the wrong step number.
type InvalidTransitionError struct {
	RunID  string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for run %s: %s", e.RunID, e.Reason)
}

func (e *InvalidTransitionError) ErrorType() string { return "invalid_transition" }
func (e *InvalidTransitionError) IsRetryable() bool { return false }

// CooldownActiveError is a start_run gate refusal: a prior run for this SOP
// terminated too recently.
type CooldownActiveError struct {
	SopName       string
	RemainingSecs float64
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active for sop %s: %.1fs remaining", e.SopName, e.RemainingSecs)
}

func (e *CooldownActiveError) ErrorType() string { return "cooldown_active" }
func (e *CooldownActiveError) IsRetryable() bool { return true }

// ConcurrencyLimitError is a start_run gate refusal: too many non-terminal
// runs are already in flight for this SOP.
type ConcurrencyLimitError struct {
	SopName      string
	MaxConcurrent int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("concurrency limit reached for sop %s: max_concurrent=%d", e.SopName, e.MaxConcurrent)
}

func (e *ConcurrencyLimitError) ErrorType() string { return "concurrency_limit" }
func (e *ConcurrencyLimitError) IsRetryable() bool { return true }

// ParamInvalidError is a hard parameter-validation failure from the tool
// surface: a bad status string, or a missing/misshaped JSON argument.
type ParamInvalidError struct {
	Field  string
	Reason string
}

func (e *ParamInvalidError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid parameters: %s", e.Reason)
}

func (e *ParamInvalidError) ErrorType() string { return "param_invalid" }
func (e *ParamInvalidError) IsRetryable() bool { return false }

// LockPoisonedError indicates a critical section's prior holder panicked,
// leaving engine or aggregator state in an unrecoverable condition. Callers
// should trigger a supervisor restart of the owning component.
type LockPoisonedError struct {
	Component string
	Cause     interface{}
}

func (e *LockPoisonedError) Error() string {
	return fmt.Sprintf("%s: lock poisoned: %v", e.Component, e.Cause)
}

func (e *LockPoisonedError) ErrorType() string { return "lock_poisoned" }
func (e *LockPoisonedError) IsRetryable() bool { return false }

// BackendError wraps a failure from the audit/memory backend (append or
// list). It is always non-fatal to the caller: the engine's in-memory state
// remains authoritative for the remainder of the process lifetime.
type BackendError struct {
	Op    string
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error during %s: %v", e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

func (e *BackendError) ErrorType() string { return "backend_error" }
func (e *BackendError) IsRetryable() bool { return true }

// ConfigError wraps a failure loading or validating daemon configuration: a
// missing file, malformed YAML, or a value that fails validation.
type ConfigError struct {
	Key    string
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Key, e.Reason, e.Cause)
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func (e *ConfigError) ErrorType() string { return "config_error" }
func (e *ConfigError) IsRetryable() bool { return false }
