// Package errors provides user-facing error wrapping for framecraft
// commands: a short message, the probable reason, and a concrete next
// step to try.
package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps transport errors with device context.
func WrapNetworkError(err error, addr string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with device at %s", addr),
		Reason:  extractNetworkReason(err),
		Hint:    "Device may not be a KNXnet/IP gateway, or there may be a network connectivity issue",
		Try:     "framecraft discover",
		Err:     err,
	}
}

// WrapProtocolError wraps frame-level failures on a named operation.
func WrapProtocolError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("KNXnet/IP operation failed: %s", operation),
		Reason:  extractProtocolReason(err),
		Hint:    "The gateway may not support this service, or may have dropped the connection channel",
		Try:     "framecraft discover, then retry against a reported endpoint",
		Err:     err,
	}
}

// WrapSpecError wraps specification loading and validation errors.
func WrapSpecError(err error, path string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Specification error in %s", path),
		Reason:  err.Error(),
		Hint:    "Specification documents need frame, blocks and codes sections",
		Try:     fmt.Sprintf("framecraft specs show %s", path),
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "See the sample framecraft.yaml for the expected layout",
		Try:     fmt.Sprintf("framecraft specs --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - device may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - device may not be listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or device unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - device closed the connection unexpectedly"
	}

	return "Network communication failed"
}

func extractProtocolReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "status 0x") {
		return "Gateway returned an error status code"
	}
	if strings.Contains(errStr, "truncated") || strings.Contains(errStr, "parse") {
		return "Received an invalid or malformed response from the gateway"
	}
	if strings.Contains(errStr, "timeout") {
		return "Gateway did not respond within the timeout period"
	}

	return "KNXnet/IP protocol error occurred"
}
