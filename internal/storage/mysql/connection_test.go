package mysql

import (
	"strings"
	"testing"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, target, err := normalizeDSN("ankr:secret@tcp(db:3306)/ankrmcp")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if target != "db:3306/ankrmcp" {
		t.Fatalf("unexpected target: %s", target)
	}
	if strings.Contains(target, "secret") {
		t.Fatalf("target must not leak the password: %s", target)
	}
	for _, want := range []string{"collation=utf8mb4_unicode_ci", "timeout=5s"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("normalized dsn %q missing %q", dsn, want)
		}
	}

	kept, _, err := normalizeDSN("ankr@tcp(db:3306)/ankrmcp?timeout=1s&collation=utf8mb4_bin")
	if err != nil {
		t.Fatalf("normalize explicit: %v", err)
	}
	if !strings.Contains(kept, "timeout=1s") || !strings.Contains(kept, "collation=utf8mb4_bin") {
		t.Fatalf("explicit settings should be kept: %s", kept)
	}

	for _, bad := range []string{"", "   ", "not a dsn"} {
		if _, _, err := normalizeDSN(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
