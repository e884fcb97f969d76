package main

import (
	"errors"
	"strings"
)

// errHelp signals that usage was printed and the command should exit zero.
var errHelp = errors.New("help requested")

type cliError struct {
	msg  string
	hint string
	err  error
}

func (e *cliError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if e.msg != "" {
		parts = append(parts, e.msg)
	}
	if e.err != nil {
		parts = append(parts, e.err.Error())
	}
	msg := strings.Join(parts, ": ")
	if e.hint != "" {
		msg += "\nhint: " + e.hint
	}
	return msg
}

func (e *cliError) Unwrap() error { return e.err }

func newCLIError(msg, hint string) error {
	return &cliError{msg: strings.TrimSpace(msg), hint: strings.TrimSpace(hint)}
}

func wrapCLIError(err error, msg, hint string) error {
	if err == nil {
		return newCLIError(msg, hint)
	}
	return &cliError{msg: strings.TrimSpace(msg), hint: strings.TrimSpace(hint), err: err}
}
