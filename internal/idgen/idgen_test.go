package idgen

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

func TestGenerateWithPrefix(t *testing.T) {
	for _, prefix := range []string{DefaultPrefix, "dock4-", ""} {
		pattern := regexp.MustCompile(fmt.Sprintf(`^%s[a-zA-Z0-9]{%d}$`, regexp.QuoteMeta(prefix), Length))
		for i := 0; i < 50; i++ {
			id, err := GenerateWithPrefix(prefix)
			if err != nil {
				t.Fatalf("GenerateWithPrefix(%q) error: %v", prefix, err)
			}
			if !pattern.MatchString(id) {
				t.Fatalf("GenerateWithPrefix(%q) = %q, does not match %s", prefix, id, pattern)
			}
		}
	}
}

func TestGenerate_UsesSessionPrefix(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !strings.HasPrefix(id, "ds-") || len(id) != len("ds-")+Length {
		t.Fatalf("Generate() = %q", id)
	}
}

func TestSessionID_Unique(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := SessionID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
