package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withColor(t *testing.T, enabled bool) {
	t.Helper()
	prev := noColor
	noColor = !enabled
	t.Cleanup(func() { noColor = prev })
}

func TestRenderTopic(t *testing.T) {
	withColor(t, true)
	for _, tc := range []struct {
		topic string
		code  string
	}{
		{"baywatch.object.arrived", "114"},
		{"baywatch.tag.accepted", "114"},
		{"baywatch.tag.duplicate", "179"},
		{"baywatch.tag.ignored", "245"},
		{"baywatch.object.departed", "74"},
	} {
		t.Run(tc.topic, func(t *testing.T) {
			got := RenderTopic(tc.topic)
			if !strings.Contains(got, "38;5;"+tc.code+"m") || !strings.Contains(got, tc.topic) {
				t.Fatalf("RenderTopic(%q) = %q, want color %s", tc.topic, got, tc.code)
			}
		})
	}
}

func TestNoColor(t *testing.T) {
	withColor(t, false)
	if got := RenderTopic("baywatch.tag.accepted"); got != "baywatch.tag.accepted" {
		t.Fatalf("expected plain text, got %q", got)
	}
	if got := RenderPresence(true); got != "present" {
		t.Fatalf("RenderPresence(true) = %q", got)
	}
	if got := RenderPresence(false); got != "absent" {
		t.Fatalf("RenderPresence(false) = %q", got)
	}
}

func TestShouldUseColor(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	for _, tc := range []struct {
		name string
		env  map[string]string
		want bool
	}{
		{name: "NotATerminal", want: false},
		{name: "NoColorWins", env: map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, want: false},
		{name: "Forced", env: map[string]string{"CLICOLOR_FORCE": "1"}, want: true},
		{name: "Disabled", env: map[string]string{"CLICOLOR": "0"}, want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"NO_COLOR", "CLICOLOR_FORCE", "CLICOLOR"} {
				t.Setenv(k, tc.env[k])
			}
			if got := ShouldUseColor(f); got != tc.want {
				t.Fatalf("ShouldUseColor = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSetupPlain(t *testing.T) {
	withColor(t, true)
	t.Setenv("CLICOLOR_FORCE", "1")
	t.Setenv("NO_COLOR", "")
	Setup(os.Stdout, true)
	if !noColor {
		t.Fatal("plain output should disable color")
	}
}
