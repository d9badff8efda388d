package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/antibyte/retrobasic/pkg/shared"
)

// Limits for client frames.
const (
	MaxFrameSize    = 64 * 1024
	MaxContentLen   = 1024
	MaxSessionIDLen = 64
)

var (
	ErrFrameTooLarge   = errors.New("frame too large")
	ErrContentTooLong  = errors.New("content too long")
	ErrSessionMismatch = errors.New("session id does not match connection")
)

// JSONValidator decodes and cleans client frames.
type JSONValidator struct {
	MaxFrameSize  int
	MaxContentLen int
}

// NewJSONValidator returns a validator with the default limits.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{
		MaxFrameSize:  MaxFrameSize,
		MaxContentLen: MaxContentLen,
	}
}

// DecodeClientMessage parses one frame. Unknown fields and trailing data
// are rejected. A frame naming a session must name sessionID. Tabs in the
// content become spaces and other control characters are dropped.
func (v *JSONValidator) DecodeClientMessage(data []byte, sessionID string) (shared.ClientMessage, error) {
	var msg shared.ClientMessage
	if len(data) > v.MaxFrameSize {
		return msg, ErrFrameTooLarge
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&msg); err != nil {
		return msg, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return msg, fmt.Errorf("invalid JSON: trailing data")
	}

	if msg.SessionID != "" && (len(msg.SessionID) > MaxSessionIDLen || msg.SessionID != sessionID) {
		return msg, ErrSessionMismatch
	}
	if len(msg.Content) > v.MaxContentLen {
		return msg, ErrContentTooLong
	}
	msg.Content = sanitizeContent(msg.Content)
	return msg, nil
}

func sanitizeContent(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}
