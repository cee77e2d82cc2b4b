package domain

import (
	"fmt"
	"strings"
)

// ConfigurationError is returned when a required setting is missing or malformed.
// Nothing has been started when it occurs.
type ConfigurationError struct {
	Setting string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %s: %s: %s", e.Setting, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Setting, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StartupFailure is returned when a long-lived environment never became ready.
type StartupFailure struct {
	Environment string
	Image       string
	Err         error
}

func (e *StartupFailure) Error() string {
	return fmt.Sprintf("failed to start %s (%s): %s", e.Environment, e.Image, e.Err)
}

func (e *StartupFailure) Unwrap() error {
	return e.Err
}

// SetupFailure is returned when a setup procedure did not run to completion.
// Logs holds whatever the procedure wrote before it failed.
type SetupFailure struct {
	Image string
	Logs  string
	Err   error
}

func (e *SetupFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "setup %s failed: %s", e.Image, e.Err)
	if logs := strings.TrimSpace(e.Logs); logs != "" {
		fmt.Fprintf(&b, "\n%s", logs)
	}
	return b.String()
}

func (e *SetupFailure) Unwrap() error {
	return e.Err
}

// ExecutionFailure is returned when a command exited with a code outside of
// its allow-list. Command may carry connection strings with passwords, so
// only the program name is part of the message.
type ExecutionFailure struct {
	Command  []string
	ExitCode int
	Stderr   string
}

func (e *ExecutionFailure) Error() string {
	program := "command"
	if len(e.Command) > 0 {
		program = e.Command[0]
	}
	return fmt.Sprintf("exec %s failed with code:%d error:\n%s", program, e.ExitCode, e.Stderr)
}
