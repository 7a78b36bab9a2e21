package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, c string) { Version, Commit = v, c }(Version, Commit)

	Version, Commit = "v1.2.0", "unknown"
	if got := String(); got != "v1.2.0" {
		t.Errorf("without commit: %q", got)
	}
	Commit = "0123456789abcdef"
	if got := String(); got != "v1.2.0+0123456" {
		t.Errorf("with commit: %q", got)
	}
}
