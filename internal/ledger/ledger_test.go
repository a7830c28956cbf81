package ledger

import (
	"testing"
	"time"

	"github.com/greatliontech/relgit/internal/release"
)

func TestImportTag(t *testing.T) {
	if got := ImportTag("Trigger/TrigSteer", "TrigSteer-01-02-03", 42); got != "import/TrigSteer-01-02-03" {
		t.Errorf("ImportTag = %q", got)
	}
	// Trunk markers pin the revision since trunk keeps moving.
	if got := ImportTag("Trigger/TrigSteer", "trunk", 1234); got != "import/TrigSteer-r1234" {
		t.Errorf("Trunk ImportTag = %q", got)
	}
}

func TestBranchImportTag(t *testing.T) {
	got := BranchImportTag("20.1", "Trigger/TrigSteer", "TrigSteer-01-02-03", 42)
	if got != "20.1/import/TrigSteer-01-02-03" {
		t.Errorf("BranchImportTag = %q", got)
	}
}

func TestReleaseTag(t *testing.T) {
	desc := release.Descriptor{Name: "20.1.5", Type: release.TypeBase}
	if got := ReleaseTag(desc, "20.1"); got != "release/20.1.5" {
		t.Errorf("ReleaseTag = %q", got)
	}

	nightly := release.Descriptor{
		Name:      "20.1.X-2015-06-12",
		Type:      release.TypeNightly,
		Nightly:   true,
		Timestamp: 1434078000,
	}
	got := ReleaseTag(nightly, "20.1.X")
	want := "nightly/20.1.X/" + time.Unix(nightly.Timestamp, 0).Format("2006-01-02T1504")
	if got != want {
		t.Errorf("Nightly ReleaseTag = %q, want %q", got, want)
	}
}

func TestContains(t *testing.T) {
	l := New([]string{"release/20.1.5", "", "import/TrigSteer-01-02-03"})
	if !l.Contains("release/20.1.5") {
		t.Error("Expected release/20.1.5")
	}
	if l.Contains("") {
		t.Error("Empty tag names must be dropped")
	}
	if l.Contains("release/20.1.6") {
		t.Error("Unexpected tag")
	}
}

func TestBranchMarkers(t *testing.T) {
	l := New([]string{
		"20.1/import/TrigSteer-01-02-03",
		"20.1/import/EventInfo-r1234",
		"20.2/import/TrigSteer-01-02-05",
		"import/TrigSteer-01-02-03",
		"release/20.1.5",
	})

	markers := l.BranchMarkers("20.1")
	if len(markers) != 2 {
		t.Fatalf("Expected 2 markers, got %d: %v", len(markers), markers)
	}
	m, ok := markers["TrigSteer"]
	if !ok {
		t.Fatal("Expected TrigSteer marker")
	}
	if m.SVNTag != "TrigSteer-01-02-03" || m.GitTag != "20.1/import/TrigSteer-01-02-03" {
		t.Errorf("Unexpected marker %+v", m)
	}
	if m, ok := markers["EventInfo"]; !ok || m.SVNTag != "EventInfo-r1234" {
		t.Errorf("Unexpected trunk marker %+v", m)
	}
}
