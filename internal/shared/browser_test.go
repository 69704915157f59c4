package shared

import (
	"slices"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	const url = "https://accounts.google.com/o/oauth2/auth?state=abc&x=1"

	tests := []struct {
		goos string
		want []string
	}{
		{"darwin", []string{"open", url}},
		{"linux", []string{"xdg-open", url}},
		{"freebsd", []string{"xdg-open", url}},
		{"windows", []string{"rundll32", "url.dll,FileProtocolHandler", url}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(cmd.Args, tt.want) {
				t.Errorf("expected args %v, got %v", tt.want, cmd.Args)
			}
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		if _, err := browserCommand("plan9", url); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})
}
