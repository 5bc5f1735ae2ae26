// Package otp generates one-time codes and hands them to a delivery channel.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
)

const (
	minCode = 100000
	maxCode = 999999
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// ValidPhone reports whether phone is exactly ten ASCII digits.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Generate returns a six digit code drawn uniformly from [100000, 999999].
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("reading random code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+minCode), nil
}

// Sender delivers a code to a phone number out of band.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender is the mock SMS channel: the code only shows up in the debug log.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, phone, code string) error {
	s.Logger.DebugContext(ctx, "otp issued", "phone", phone, "code", code)
	return nil
}
