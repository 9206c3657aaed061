package version

import (
	"runtime"
	"testing"
)

func TestGetFillsGoVersionAndFallbackCommit(t *testing.T) {
	info := Get(" abc123 ")

	if info.GoVersion != runtime.Version() {
		t.Fatalf("expected go version %s, got %s", runtime.Version(), info.GoVersion)
	}
	if info.Version == "" {
		t.Fatalf("expected a version")
	}
	if Commit == "" && info.Commit == "" {
		t.Fatalf("expected a commit from build info or the fallback")
	}
}

func TestGetPrefersLinkedValues(t *testing.T) {
	previousVersion, previousCommit := Version, Commit
	Version, Commit = "1.2.3", "deadbeef"
	t.Cleanup(func() { Version, Commit = previousVersion, previousCommit })

	info := Get("abc123")
	if info.Version != "1.2.3" || info.Commit != "deadbeef" {
		t.Fatalf("unexpected info %+v", info)
	}
}
