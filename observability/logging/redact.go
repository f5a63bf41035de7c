package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret values in log output.
const RedactedValue = "[REDACTED]"

// secretKeys never reach the log in clear, whatever their value.
var secretKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"jwt":           {},
	"secret":        {},
	"jwt_secret":    {},
	"password":      {},
	"dsn":           {},
	"headers":       {},
}

// accountKeys carry account addresses of protocol users.
var accountKeys = map[string]struct{}{
	"user":     {},
	"caller":   {},
	"keeper":   {},
	"buyer":    {},
	"owner":    {},
	"delegate": {},
	"redeemer": {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsSecret reports whether values logged under key are redacted.
func IsSecret(key string) bool {
	_, ok := secretKeys[normalizeKey(key)]
	return ok
}

// IsAccount reports whether key names an account address.
func IsAccount(key string) bool {
	_, ok := accountKeys[normalizeKey(key)]
	return ok
}

// ShortAddress abbreviates a 0x-prefixed 20 byte hex address to its first
// and last four digits. Other values are returned unchanged.
func ShortAddress(addr string) string {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return addr
	}
	return addr[:6] + ".." + addr[38:]
}

// MaskField returns key and value, redacting the value when key names a
// secret.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) != "" && IsSecret(key) {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, value)
}

// redact rewrites a single attribute. Secrets are always masked; account
// addresses are abbreviated unless full is set.
func redact(attr slog.Attr, full bool) slog.Attr {
	if attr.Value.Kind() != slog.KindString {
		return attr
	}
	switch {
	case IsSecret(attr.Key):
		return MaskField(attr.Key, attr.Value.String())
	case !full && IsAccount(attr.Key):
		return slog.String(attr.Key, ShortAddress(attr.Value.String()))
	}
	return attr
}
