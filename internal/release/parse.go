package release

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
)

var (
	numberedRe = regexp.MustCompile(`^#release\s([\d\.]+)`)
	nightlyRe  = regexp.MustCompile(`^#tags for\s([\d\.]+)`)
)

// pseudo-packages generated by the build system that never belong in
// the migrated tree
var projectPackages = map[string]bool{
	"AtlasEvent": true, "AtlasAnalysis": true, "AtlasCore": true,
	"AtlasTrigger": true, "AtlasProduction": true, "AtlasOffline": true,
	"DetCommon": true, "AtlasReconstruction": true, "AtlasConditions": true,
	"AtlasExternals": true, "AtlasSimulation": true, "AtlasHLT": true,
}

// ParseTagFile reads a plain build-system tag file: one
// "package tag project" triple per line, with a #release or
// "#tags for" header naming the release. The file's mtime is the
// release timestamp.
func ParseTagFile(fname, namePrefix string) (*Snapshot, error) {
	info, err := os.Stat(fname)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	desc, err := scanReleaseHeader(f, fname)
	if err != nil {
		return nil, err
	}
	desc.Timestamp = info.ModTime().Unix()
	if namePrefix != "" {
		desc.Name = namePrefix + "-" + desc.Name
	}
	if desc.Nightly {
		desc.Name += "-" + time.Unix(desc.Timestamp, 0).Format("2006-01-02")
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	packages, err := scanPackageLines(f)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Release: desc, Packages: packages}, nil
}

// scanReleaseHeader derives the descriptor from the tag file header.
// A three-element release name is a base release, four elements a
// cache; the "#tags for" header form marks a nightly.
func scanReleaseHeader(f *os.File, fname string) (Descriptor, error) {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := numberedRe.FindStringSubmatch(line); m != nil {
			return describeRelease(m[1], false)
		}
		if m := nightlyRe.FindStringSubmatch(line); m != nil {
			return describeRelease(m[1], true)
		}
	}
	if err := scanner.Err(); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{}, fmt.Errorf("no release name header in tag file %s", fname)
}

func describeRelease(name string, nightly bool) (Descriptor, error) {
	elements := strings.Split(name, ".")
	if len(elements) < 3 {
		return Descriptor{}, fmt.Errorf("malformed release name %q", name)
	}
	relType := TypeBase
	if len(elements) > 3 {
		relType = TypeCache
	}
	if nightly {
		relType = TypeNightly
	}
	return Descriptor{Name: name, Type: relType, Nightly: nightly}, nil
}

func scanPackageLines(f *os.File) (map[string]string, error) {
	packages := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) != 3 {
			continue
		}
		pkg, tag, project := fields[0], fields[1], fields[2]
		if project == "GAUDI" {
			continue
		}
		// Container "Release" and "RunTime" packages are build
		// artifacts, except TriggerRelease which is real.
		if pkg != "Trigger/TriggerRelease" &&
			(strings.HasSuffix(pkg, "Release") || strings.HasSuffix(pkg, "RunTime")) {
			slog.Debug("vetoing generated package", "package", pkg)
			continue
		}
		if projectPackages[pkg] {
			slog.Debug("vetoing project pseudo-package", "package", pkg)
			continue
		}
		if !strings.Contains(pkg, "/") && strings.Contains(tag, "22-00-00") {
			continue
		}
		packages[pkg] = tag
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return packages, nil
}
