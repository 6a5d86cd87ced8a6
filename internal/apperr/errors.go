// Package apperr provides the plugin host's error taxonomy: a single
// AppError type with one constructor per failure mode named in the error
// handling design (manifest parsing, version incompatibility, dynamic load,
// config/init failures, panics, timeouts, command execution, and the
// session-disabled sentinel).
//
// Every AppError wraps its underlying cause (if any) with pkg/errors so a
// "%+v" format verb prints a stack trace at the point the error was first
// wrapped, without the host needing its own tracing machinery.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a machine-readable error category, one per failure mode.
type Code string

const (
	CodeManifestError   Code = "MANIFEST_ERROR"
	CodeIncompatibleVer Code = "INCOMPATIBLE_VERSION"
	CodeLoadError       Code = "LOAD_ERROR"
	CodeConfigError     Code = "CONFIG_ERROR"
	CodeInitError       Code = "INIT_ERROR"
	CodePanicked        Code = "PANICKED"
	CodeTimeout         Code = "TIMEOUT"
	CodeCommandError    Code = "COMMAND_ERROR"
	CodeSessionDisabled Code = "SESSION_DISABLED"
)

// AppError is the standardized error type surfaced to plugin list/status
// output and the host's error popup buffer.
type AppError struct {
	// Code identifies which failure mode produced this error.
	Code Code `json:"code"`

	// Plugin is the plugin name this error is attributed to, when
	// applicable. Empty for errors with no single-plugin origin.
	Plugin string `json:"plugin,omitempty"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// cause is the underlying error, if any, wrapped for stack-trace
	// retention. Not marshaled directly; Error()/Unwrap() expose it.
	cause error
}

func (e *AppError) Error() string {
	if e.Plugin != "" {
		if e.cause != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.Code, e.Plugin, e.Message, e.cause)
		}
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Plugin, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Format implements fmt.Formatter: "%+v" prints Error() followed by the
// wrapped cause's stack trace; every other verb formats Error().
func (e *AppError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.cause != nil {
		fmt.Fprintf(s, "%s\n%+v", e.Error(), e.cause)
		return
	}
	fmt.Fprintf(s, fmt.FormatString(s, verb), e.Error())
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *AppError) Unwrap() error {
	return e.cause
}

func newAppError(code Code, plugin, message string, cause error) *AppError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &AppError{Code: code, Plugin: plugin, Message: message, cause: wrapped}
}

// ManifestError reports a missing, unparseable, or schema-invalid manifest.
// The plugin remains visible in listings but inactive.
func ManifestError(plugin, message string, cause error) *AppError {
	return newAppError(CodeManifestError, plugin, message, cause)
}

// IncompatibleVersion reports a plugin whose declared minimum interface
// version exceeds the host's. The plugin is discovered but never loaded.
func IncompatibleVersion(plugin, message string) *AppError {
	return newAppError(CodeIncompatibleVer, plugin, message, nil)
}

// LoadError reports a dynamic-library open or symbol-lookup failure.
func LoadError(plugin, message string, cause error) *AppError {
	return newAppError(CodeLoadError, plugin, message, cause)
}

// ConfigError reports a missing-and-required config file, a parse failure,
// or a schema validation failure.
func ConfigError(plugin, message string, cause error) *AppError {
	return newAppError(CodeConfigError, plugin, message, cause)
}

// InitError reports a plugin's own init() call returning an error.
func InitError(plugin, message string, cause error) *AppError {
	return newAppError(CodeInitError, plugin, message, cause)
}

// Panicked reports a plugin call that unwound via panic; message carries
// the best-effort recovered panic payload.
func Panicked(plugin, message string) *AppError {
	return newAppError(CodePanicked, plugin, message, nil)
}

// Timeout reports a hook call that exceeded its manifest-declared
// hook_timeout_secs.
func Timeout(plugin string, timeoutSecs int) *AppError {
	return newAppError(CodeTimeout, plugin, fmt.Sprintf("hook exceeded %ds timeout", timeoutSecs), nil)
}

// CommandError reports a command batch that references a missing id,
// an invalid metadata key, or otherwise violates an executor invariant.
func CommandError(plugin, message string) *AppError {
	return newAppError(CodeCommandError, plugin, message, nil)
}

// SessionDisabled is the sentinel returned for plugins the dispatcher has
// tripped off for the remainder of the process.
func SessionDisabled(plugin string) *AppError {
	return newAppError(CodeSessionDisabled, plugin, "plugin is session-disabled after repeated failures", nil)
}

// Is reports whether err carries the given code, unwrapping through any
// wrapped causes.
func Is(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
