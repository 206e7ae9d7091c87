package loadtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o wait expired" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifier_Classify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name string
		hint string
		err  error
		want ErrorKind
	}{
		{"explicit session error", "", NewSessionError(ErrorRejected, errors.New("whatever")), ErrorRejected},
		{"wrapped session error", "", fmt.Errorf("outer: %w", NewSessionError(ErrorNavigationFailure, nil)), ErrorNavigationFailure},
		{"deadline exceeded", "", context.DeadlineExceeded, ErrorTimeout},
		{"net timeout", "", timeoutErr{}, ErrorTimeout},
		{"timeout hint", "Navigation timeout of 10000 ms exceeded", nil, ErrorTimeout},
		{"invalid credentials", "Invalid credentials", nil, ErrorRejected},
		{"status 401", "login rejected with status 401", nil, ErrorRejected},
		{"connection refused", "", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), ErrorNavigationFailure},
		{"dns", "", errors.New("lookup nowhere.invalid: no such host"), ErrorNavigationFailure},
		{"missing form", "login form not found", nil, ErrorNavigationFailure},
		{"unmatched", "something odd happened", nil, ErrorUnknown},
		{"empty", "", nil, ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.hint, tt.err))
		})
	}
}

func TestClassifier_CustomRules(t *testing.T) {
	c := &Classifier{Rules: []ClassifyRule{{Kind: ErrorRejected, Keywords: []string{"captcha"}}}}

	assert.Equal(t, ErrorRejected, c.Classify("CAPTCHA required", nil))
	assert.Equal(t, ErrorUnknown, c.Classify("connection refused", nil))
}

func TestSessionError(t *testing.T) {
	inner := errors.New("bad password")
	err := NewSessionError(ErrorRejected, inner)

	assert.Equal(t, "rejected: bad password", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "timeout", NewSessionError(ErrorTimeout, nil).Error())
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "hint: boom", detail("hint", errors.New("boom")))
	assert.Equal(t, "boom", detail("", errors.New("boom")))
	assert.Equal(t, "", detail("", nil))

	long := detail(strings.Repeat("x", 300), nil)
	assert.Len(t, long, 203)

	t.Run("multi-byte text is cut on a rune boundary", func(t *testing.T) {
		msg := detail(strings.Repeat("a", 199)+"登录失败", nil)
		assert.True(t, utf8.ValidString(msg))
		assert.Equal(t, strings.Repeat("a", 199)+"...", msg)

		msg = detail(strings.Repeat("密", 100), nil)
		assert.True(t, utf8.ValidString(msg))
		assert.Equal(t, strings.Repeat("密", 66)+"...", msg)
	})
}
