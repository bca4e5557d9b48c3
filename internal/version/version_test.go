package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetUsesLdflagValues(t *testing.T) {
	saved := GitCommit
	t.Cleanup(func() { GitCommit = saved })

	GitCommit = "abc1234"
	info := Get()
	if info.GitCommit != "abc1234" {
		t.Errorf("GitCommit = %q, want abc1234", info.GitCommit)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestSummary(t *testing.T) {
	info := Info{Version: "1.2.0", GitCommit: "abc1234", BuildDate: "2025-01-27", GoVersion: "go1.24", Platform: "linux/amd64"}
	got := info.Summary()
	for _, want := range []string{"v4l2tricks 1.2.0", "commit abc1234", "built 2025-01-27", "linux/amd64"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}
