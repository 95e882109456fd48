// Package apperr defines the error categories of an assessment run.
//
// Error taxonomy
//
//	Input:   malformed or unclassifiable identifier. The run aborts.
//	Config:  missing or invalid metric catalog or reference data. Startup aborts.
//	Network: timeout, DNS or TLS failure of a single fetch. Logged, the run continues.
//	Parse:   a collector could not parse a fragment. Logged, the fragment is dropped.
//
// Everything else is a plain Go error wrapped with fmt.Errorf("context: %w", err).
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error
type Kind int

const (
	KindInput Kind = iota + 1
	KindConfig
	KindNetwork
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is a categorized error
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "catalog.Load"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Op, e.Msg} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Input creates an input error.
func Input(msg string) error { return &Error{Kind: KindInput, Msg: msg} }

// Inputf creates a formatted input error.
func Inputf(format string, args ...any) error {
	return &Error{Kind: KindInput, Msg: fmt.Sprintf(format, args...)}
}

// Config creates a configuration error wrapping err (which may be nil).
func Config(op string, err error) error { return &Error{Kind: KindConfig, Op: op, Err: err} }

// Configf creates a formatted configuration error.
func Configf(op string, format string, args ...any) error {
	return &Error{Kind: KindConfig, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Network wraps a fetch failure.
func Network(op string, err error) error { return &Error{Kind: KindNetwork, Op: op, Err: err} }

// Parse wraps a collector failure.
func Parse(op string, err error) error { return &Error{Kind: KindParse, Op: op, Err: err} }

// KindOf returns the kind of err, or 0 when err is not categorized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsInput reports whether err is (or wraps) an input error.
func IsInput(err error) bool { return KindOf(err) == KindInput }

// IsConfig reports whether err is (or wraps) a configuration error.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// IsNetwork reports whether err is (or wraps) a network error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsParse reports whether err is (or wraps) a parse error.
func IsParse(err error) bool { return KindOf(err) == KindParse }
