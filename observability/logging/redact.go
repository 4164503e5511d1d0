package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets such as bearer tokens and request
// signatures in log output.
const RedactedValue = "[REDACTED]"

// plainKeys are the node's log keys that never carry credentials. Accounts
// are public on chain so signer and account stay readable.
var plainKeys = map[string]struct{}{
	"component":  {},
	"op":         {},
	"method":     {},
	"code":       {},
	"reason":     {},
	"error":      {},
	"request_id": {},
	"account":    {},
	"signer":     {},
}

// IsAllowlisted reports whether key may be logged without masking. Keys are
// matched case-insensitively and dashes count as underscores.
func IsAllowlisted(key string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
	_, ok := plainKeys[normalized]
	return ok
}

// MaskField builds a string attribute, masking value unless key is
// allowlisted. Empty values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
