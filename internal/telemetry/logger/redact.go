package logger

import (
	"log/slog"
	"strings"
)

// Key names whose string values are never logged in full. "key" also
// catches session_key, master_key, wrapped_key.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"nonce",
	"credential",
	"challenge",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive redacts attributes that carry key material. Two
// triggers: the key name looks sensitive, or the value itself looks
// like raw key material (32 or 64 hex chars, the lengths of an AES key
// or a handshake challenge).
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()

		keyLower := strings.ToLower(a.Key)
		for _, pattern := range sensitiveKeyPatterns {
			if strings.Contains(keyLower, pattern) {
				if strVal != "" {
					return slog.String(a.Key, redactedValue)
				}
				break
			}
		}

		if looksLikeKeyMaterial(strVal) {
			return slog.String(a.Key, maskHex(strVal))
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// looksLikeKeyMaterial reports whether a value is a 32- or 64-char hex
// string. Card UIDs are at most 20 hex chars and pass through.
func looksLikeKeyMaterial(value string) bool {
	if len(value) != 32 && len(value) != 64 {
		return false
	}
	for _, c := range value {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// maskHex keeps the first and last two hex chars as a correlation
// hint.
func maskHex(value string) string {
	return value[:2] + "..." + value[len(value)-2:]
}

// RedactString manually redacts a value before it reaches a log call.
func RedactString(value string) string {
	if looksLikeKeyMaterial(value) {
		return maskHex(value)
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
