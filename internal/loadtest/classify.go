package loadtest

import (
	"context"
	"errors"
	"net"
	"strings"
	"unicode/utf8"
)

// ClassifyRule maps any of its keywords, found in a failure's text, to a kind.
type ClassifyRule struct {
	Kind     ErrorKind
	Keywords []string
}

// Classifier turns driver failures into error kinds. Rules are tried in
// order against the lower-cased hint and error text.
type Classifier struct {
	Rules []ClassifyRule
}

// DefaultClassifier returns the stock keyword rules.
func DefaultClassifier() *Classifier {
	return &Classifier{
		Rules: []ClassifyRule{
			{Kind: ErrorTimeout, Keywords: []string{
				"timeout", "timed out", "deadline exceeded",
			}},
			{Kind: ErrorRejected, Keywords: []string{
				"invalid credentials", "invalid password", "incorrect", "wrong password",
				"unauthorized", "forbidden", "rejected", "denied", "login failed",
				"authentication failed", "status 401", "status 403", "too many requests",
			}},
			{Kind: ErrorNavigationFailure, Keywords: []string{
				"connection refused", "connection reset", "no such host", "dns",
				"navigation", "net::err", "could not load", "unreachable",
				"status 404", "login form not found", "eof",
			}},
		},
	}
}

// Classify picks the error kind for a failed attempt. An explicit
// *SessionError wins, then timeouts reported by the runtime, then keyword
// rules; anything left over is ErrorUnknown.
func (c *Classifier) Classify(hint string, err error) ErrorKind {
	var se *SessionError
	if errors.As(err, &se) && se.Kind != "" && se.Kind != ErrorNone {
		return se.Kind
	}
	if isTimeout(err) {
		return ErrorTimeout
	}

	text := strings.ToLower(hint)
	if err != nil {
		text += " " + strings.ToLower(err.Error())
	}
	for _, rule := range c.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Kind
			}
		}
	}
	return ErrorUnknown
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

const maxDetailBytes = 200

// detail builds the free-text diagnostic stored on a failed result.
func detail(hint string, err error) string {
	msg := hint
	if err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += err.Error()
	}
	if len(msg) > maxDetailBytes {
		cut := maxDetailBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
