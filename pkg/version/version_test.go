package version

import (
	"strings"
	"testing"
)

func TestFullVersionMentionsCommitForDevBuilds(t *testing.T) {
	if got := GetFullVersion(); !strings.Contains(got, "commit:") {
		t.Fatalf("expected commit in dev version, got %q", got)
	}

	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	if got := GetFullVersion(); got != "tgbridge/1.2.3" {
		t.Fatalf("unexpected release version %q", got)
	}
	if info := GetInfo(); info.Version != "1.2.3" || info.App != "tgbridge" {
		t.Fatalf("unexpected info %+v", info)
	}
}
