// Package privacylog keeps wallet secrets and linkable identifiers out of logs.
package privacylog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	redactedValue     = "[REDACTED]"
	fingerprintSuffix = "_fp"
)

var (
	// Keyed per process so fingerprints correlate within one run only.
	fingerprintKey = randomKey()

	fingerprintKeys = map[string]struct{}{
		"txid":      {},
		"address":   {},
		"outpoint":  {},
		"change":    {},
		"recipient": {},
	}
	fingerprintKeySuffixes = []string{"_txid", "_address", "_outpoint"}
	// Identifiers embedded in free text such as error messages: txids (and the
	// txid half of outpoints), bech32 and base58check addresses.
	identifierPattern = regexp.MustCompile(
		`\b[0-9a-fA-F]{64}\b` +
			`|\b(?:bc|tb|bcrt)1[02-9ac-hj-np-z]{6,87}\b` +
			`|\b[123mn][1-9A-HJ-NP-Za-km-z]{25,34}\b`,
	)
	sensitiveKeyParts = []string{
		"mnemonic", "seed", "xprv", "descriptor", "psbt",
		"token", "secret", "password", "passphrase", "cookie",
	}
)

// SanitizingHandler redacts secrets and fingerprints wallet identifiers
// before records reach the wrapped handler.
type SanitizingHandler struct {
	next slog.Handler
}

// NewJSONLogger returns the daemon's default logger: JSON lines on w at level.
func NewJSONLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(WrapHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// ParseLevel accepts slog level names and falls back to info.
func ParseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, ScrubIdentifiers(rec.Message), rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lower := strings.ToLower(key)
	value := attr.Value.Resolve()
	switch {
	case isSensitiveKey(lower):
		return slog.String(key, redactedValue)
	case isFingerprintKey(lower):
		return slog.String(key+fingerprintSuffix, Fingerprint(value.String()))
	case value.Kind() == slog.KindGroup:
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(value.Group())...)}
	case value.Kind() == slog.KindString:
		return slog.String(key, ScrubIdentifiers(value.String()))
	case value.Kind() == slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(key, ScrubIdentifiers(err.Error()))
		}
	}
	return attr
}

// ScrubIdentifiers replaces txids and addresses inside free text with their
// fingerprints.
func ScrubIdentifiers(text string) string {
	return identifierPattern.ReplaceAllStringFunc(text, Fingerprint)
}

// Fingerprint maps an identifier to a short stable token for this process.
func Fingerprint(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	h, err := blake2b.New(8, fingerprintKey)
	if err != nil {
		// Only reachable with an oversized key.
		return redactedValue
	}
	_, _ = h.Write([]byte(trimmed))
	return "fp_" + hex.EncodeToString(h.Sum(nil))
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func isFingerprintKey(key string) bool {
	if strings.HasSuffix(key, fingerprintSuffix) {
		return false
	}
	if _, ok := fingerprintKeys[key]; ok {
		return true
	}
	for _, suffix := range fingerprintKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func randomKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return []byte("walletd-fallback-fingerprint-key")
	}
	return key
}
