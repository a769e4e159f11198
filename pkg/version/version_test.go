package version

import (
	"regexp"
	"testing"
)

func TestVersionLooksLikeSemver(t *testing.T) {
	if !regexp.MustCompile(`^v\d+\.\d+\.\d+`).MatchString(Version) {
		t.Errorf("Version = %q, want vX.Y.Z", Version)
	}
}
