package request

import "testing"

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"nominatim.openstreetmap.org", "nominatim.openstreetmap.org"},
		{"a.tile.openstreetmap.org", "tile.openstreetmap.org"},
		{"C.TILE.OPENSTREETMAP.ORG", "tile.openstreetmap.org"},
		{"server.arcgisonline.com", "server.arcgisonline.com"},
		{"127.0.0.1:8080", "127.0.0.1:8080"},
	}

	for _, tt := range tests {
		got := normalizeProvider(tt.host)
		if got != tt.expected {
			t.Errorf("normalizeProvider(%q) = %q; want %q", tt.host, got, tt.expected)
		}
	}
}
