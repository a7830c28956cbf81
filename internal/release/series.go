package release

import (
	"fmt"
	"log/slog"
	"sort"
)

// Series is a chronologically ordered sequence of release snapshots.
type Series []*Snapshot

// LoadSeries reads snapshot files in the order given.
func LoadSeries(fnames []string) (Series, error) {
	series := make(Series, 0, len(fnames))
	for _, fname := range fnames {
		s, err := Load(fname)
		if err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return series, nil
}

// SortChronological orders the series by release timestamp, keeping
// the input order for equal timestamps.
func (s Series) SortChronological() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Release.Timestamp < s[j].Release.Timestamp
	})
}

// Validate checks the ordering invariants for a reconciliation run:
// the series must open with a base release.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty release series")
	}
	if s[0].Release.Type != TypeBase {
		return fmt.Errorf("%w: release %s is %s", ErrFirstNotBase,
			s[0].Release.Name, s[0].Release.Type)
	}
	return nil
}

// FilterBackskips walks the series backwards and drops releases whose
// processing would move time backwards relative to a later release.
// Used when layering a series onto a long-lived forward-only branch,
// where earlier release series that overlap later ones must not pull
// history back in time.
func (s Series) FilterBackskips() Series {
	var lastTimestamp int64
	lastRelease := ""
	keep := make([]bool, len(s))
	for i := len(s) - 1; i >= 0; i-- {
		if lastTimestamp != 0 && s[i].Release.Timestamp > lastTimestamp {
			slog.Info("vetoing release for backskip",
				"release", s[i].Release.Name, "blockedBy", lastRelease)
			continue
		}
		keep[i] = true
		lastTimestamp = s[i].Release.Timestamp
		lastRelease = s[i].Release.Name
		slog.Info("accepted release", "release", lastRelease, "timestamp", lastTimestamp)
	}
	filtered := make(Series, 0, len(s))
	for i, snap := range s {
		if keep[i] {
			filtered = append(filtered, snap)
		}
	}
	return filtered
}
