package diff

import (
	"encoding/json"
	"log/slog"

	"github.com/google/renameio/v2"
	"github.com/greatliontech/relgit/internal/release"
)

// Entry is one step of a tag-evolution file: a release, its
// descriptor, and the diff that brings the previous step's content up
// to it.
type Entry struct {
	Release string             `json:"release"`
	Meta    release.Descriptor `json:"meta"`
	Diff    *Diff              `json:"diff"`
}

// BuildEvolution walks a chronological series and produces the ordered
// diff list. Base releases diff against the previous base with removal
// allowed; cache releases diff against their base with removal
// deferred to cache-overlap reconciliation against the immediately
// preceding cache only.
func BuildEvolution(series release.Series) ([]Entry, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	lastBase := series[0]
	var lastCache *release.Snapshot

	entries := []Entry{{
		Release: lastBase.Release.Name,
		Meta:    lastBase.Release,
		Diff:    Compute(nil, lastBase, false),
	}}

	for _, snap := range series[1:] {
		var d *Diff
		if snap.Release.Type == release.TypeBase {
			d = Compute(lastBase, snap, true)
			lastBase = snap
			lastCache = nil
		} else {
			d = Compute(lastBase, snap, false)
			if lastCache != nil {
				ReconcileCacheOverlap(d, lastBase, lastCache)
			}
			lastCache = snap
		}
		slog.Info("computed release diff", "release", snap.Release.Name,
			"add", len(d.Add), "remove", len(d.Remove))
		entries = append(entries, Entry{Release: snap.Release.Name, Meta: snap.Release, Diff: d})
	}
	return entries, nil
}

// WriteEvolution persists an evolution list as JSON.
func WriteEvolution(fname string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(fname, data, 0o644)
}
