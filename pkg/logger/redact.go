package logger

import (
	"log/slog"
	"strings"
)

const redacted = "***"

// sensitiveKeys are attribute keys whose values never reach a sink.
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"ankr_api_key":  {},
	"authorization": {},
	"token":         {},
	"access_token":  {},
	"password":      {},
	"dsn":           {},
}

// endpointMarkers precede a credential embedded in a URL path.
var endpointMarkers = []string{"/multichain/"}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if masked := RedactEndpoint(a.Value.String()); masked != a.Value.String() {
			return slog.String(a.Key, masked)
		}
	}
	return a
}

// RedactEndpoint masks the key segment of Ankr multichain URLs found in s.
func RedactEndpoint(s string) string {
	for _, marker := range endpointMarkers {
		var b strings.Builder
		rest := s
		for {
			idx := strings.Index(rest, marker)
			if idx < 0 {
				b.WriteString(rest)
				break
			}
			start := idx + len(marker)
			b.WriteString(rest[:start])
			end := start
			for end < len(rest) && !strings.ContainsRune(" \t\n\"'/?#", rune(rest[end])) {
				end++
			}
			if end > start && rest[start:end] != redacted {
				b.WriteString(redacted)
			} else {
				b.WriteString(rest[start:end])
			}
			rest = rest[end:]
		}
		s = b.String()
	}
	return s
}
