package version

import (
	"runtime/debug"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	got := fromBuildInfo(Info{}, bi)
	if got.Version != "v0.3.1" || got.Commit != "0123456789abcdef0123" || !got.Modified {
		t.Fatalf("unexpected info: %+v", got)
	}
	if got.BuildTime != "2026-10-01T12:00:00Z" || got.GoVersion != "go1.26.0" {
		t.Fatalf("unexpected build metadata: %+v", got)
	}

	pinned := fromBuildInfo(Info{Version: "v1.0.0", Commit: "abc"}, bi)
	if pinned.Version != "v1.0.0" || pinned.Commit != "abc" {
		t.Fatalf("linker values should win: %+v", pinned)
	}
}

func TestFromBuildInfoDevel(t *testing.T) {
	got := fromBuildInfo(Info{}, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if got.Version != "" {
		t.Fatalf("devel main version should be ignored, got %q", got.Version)
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
