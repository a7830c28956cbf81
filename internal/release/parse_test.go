package release

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTagFile(t *testing.T, content string, mtime time.Time) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "tags")
	if err := os.WriteFile(fname, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(fname, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return fname
}

func TestParseTagFileBaseRelease(t *testing.T) {
	mtime := time.Date(2015, 3, 1, 10, 0, 0, 0, time.UTC)
	fname := writeTagFile(t, `#release 20.1.5
Trigger/TrigSteer TrigSteer-01-02-03 AtlasTrigger
Event/EventInfo EventInfo-00-04-01 AtlasEvent
`, mtime)

	s, err := ParseTagFile(fname, "")
	if err != nil {
		t.Fatalf("ParseTagFile failed: %s", err)
	}
	if s.Release.Name != "20.1.5" {
		t.Errorf("Expected release name 20.1.5, got %q", s.Release.Name)
	}
	if s.Release.Type != TypeBase {
		t.Errorf("Expected base release, got %q", s.Release.Type)
	}
	if s.Release.Timestamp != mtime.Unix() {
		t.Errorf("Expected timestamp %d, got %d", mtime.Unix(), s.Release.Timestamp)
	}
	if got := s.Packages["Trigger/TrigSteer"]; got != "TrigSteer-01-02-03" {
		t.Errorf("Expected TrigSteer-01-02-03, got %q", got)
	}
	if len(s.Packages) != 2 {
		t.Errorf("Expected 2 packages, got %d", len(s.Packages))
	}
}

func TestParseTagFileCacheRelease(t *testing.T) {
	fname := writeTagFile(t, "#release 20.1.5.3\nTrigger/TrigSteer TrigSteer-01-02-04 AtlasTrigger\n", time.Now())
	s, err := ParseTagFile(fname, "")
	if err != nil {
		t.Fatalf("ParseTagFile failed: %s", err)
	}
	if s.Release.Type != TypeCache {
		t.Errorf("Expected cache release, got %q", s.Release.Type)
	}
}

func TestParseTagFileNightly(t *testing.T) {
	mtime := time.Date(2015, 6, 12, 3, 0, 0, 0, time.Local)
	fname := writeTagFile(t, "#tags for 20.1.X\nTrigger/TrigSteer TrigSteer-01-02-05 AtlasTrigger\n", mtime)
	s, err := ParseTagFile(fname, "")
	if err != nil {
		t.Fatalf("ParseTagFile failed: %s", err)
	}
	if !s.Release.Nightly || s.Release.Type != TypeNightly {
		t.Errorf("Expected nightly release, got %+v", s.Release)
	}
	want := "20.1.X-" + mtime.Format("2006-01-02")
	if s.Release.Name != want {
		t.Errorf("Expected name %q, got %q", want, s.Release.Name)
	}
}

func TestParseTagFileVetoes(t *testing.T) {
	fname := writeTagFile(t, `#release 20.1.5
External/Gaudi Gaudi-v25r0 GAUDI
Trigger/TriggerRelease TriggerRelease-00-05-01 AtlasTrigger
Reconstruction/RecoRelease RecoRelease-01-00-00 AtlasReconstruction
Simulation/SimuRunTime SimuRunTime-00-01-00 AtlasSimulation
AtlasProduction AtlasProduction-20-01-05 AtlasProduction
NotAPackage NotAPackage-22-00-00 AtlasOffline
Event/EventInfo EventInfo-00-04-01 AtlasEvent
`, time.Now())

	s, err := ParseTagFile(fname, "")
	if err != nil {
		t.Fatalf("ParseTagFile failed: %s", err)
	}
	for _, vetoed := range []string{
		"External/Gaudi", "Reconstruction/RecoRelease",
		"Simulation/SimuRunTime", "AtlasProduction", "NotAPackage",
	} {
		if _, ok := s.Packages[vetoed]; ok {
			t.Errorf("Package %s should have been vetoed", vetoed)
		}
	}
	if _, ok := s.Packages["Trigger/TriggerRelease"]; !ok {
		t.Error("TriggerRelease is a real package and must survive the veto")
	}
	if _, ok := s.Packages["Event/EventInfo"]; !ok {
		t.Error("Expected Event/EventInfo")
	}
}

func TestParseTagFileNamePrefix(t *testing.T) {
	fname := writeTagFile(t, "#release 20.1.5\n", time.Now())
	s, err := ParseTagFile(fname, "ATLAS")
	if err != nil {
		t.Fatalf("ParseTagFile failed: %s", err)
	}
	if s.Release.Name != "ATLAS-20.1.5" {
		t.Errorf("Expected prefixed name ATLAS-20.1.5, got %q", s.Release.Name)
	}
}

func TestParseTagFileNoHeader(t *testing.T) {
	fname := writeTagFile(t, "Trigger/TrigSteer TrigSteer-01-02-03 AtlasTrigger\n", time.Now())
	if _, err := ParseTagFile(fname, ""); err == nil {
		t.Error("Expected an error for a tag file without release header")
	}
}
