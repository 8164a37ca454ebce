package assist

import (
	"strings"
	"testing"
)

func TestRegionForSender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sender string
		want   string
	}{
		{"brazilian jid", "5511999999999@s.whatsapp.net", "Brazil"},
		{"german number", "4915112345678", "Germany"},
		{"uk number", "447911123456", "the United Kingdom"},
		{"moroccan number", "212612345678", "Morocco"},
		{"us number", "12025550123", "the United States"},
		{"unknown prefix", "0000000", "English"},
		{"empty", "", "English"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RegionForSender(tt.sender); got != tt.want {
				t.Errorf("RegionForSender(%q) = %q, want %q", tt.sender, got, tt.want)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	t.Run("includes region hint", func(t *testing.T) {
		got := BuildSystemPrompt("custom persona", "5511999999999@s.whatsapp.net")
		if !strings.HasPrefix(got, "custom persona") {
			t.Errorf("prompt does not start with instructions: %q", got)
		}
		if !strings.Contains(got, "Brazil") {
			t.Errorf("prompt missing region hint: %q", got)
		}
	})

	t.Run("falls back to default instructions", func(t *testing.T) {
		got := BuildSystemPrompt("", "0000000")
		if !strings.HasPrefix(got, DefaultInstructions) {
			t.Errorf("prompt does not use default instructions: %q", got)
		}
		if !strings.Contains(got, "English") {
			t.Errorf("prompt missing English fallback: %q", got)
		}
	})
}
