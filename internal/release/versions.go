package release

import (
	"fmt"
	"strconv"
	"strings"
)

// TrunkTag is the synthetic tag naming a package's continuously
// updated mainline, as opposed to its immutable numbered tags.
const TrunkTag = "trunk"

// CompareTags orders two version tags of the same package. Numbered
// tags ("Pkg-01-02-03") compare element by element; TrunkTag sorts
// after every numbered tag because trunk is "current", not a point in
// history.
func CompareTags(a, b string) int {
	if a == b {
		return 0
	}
	if a == TrunkTag {
		return 1
	}
	if b == TrunkTag {
		return -1
	}
	return compareVersions(tagElements(a), tagElements(b))
}

// CompareTagsSamePackage is CompareTags with a guard that both tags
// name the same package.
func CompareTagsSamePackage(a, b string) (int, error) {
	if a != TrunkTag && b != TrunkTag &&
		strings.SplitN(a, "-", 2)[0] != strings.SplitN(b, "-", 2)[0] {
		return 0, fmt.Errorf("tag comparison between different packages: %s and %s", a, b)
	}
	return CompareTags(a, b), nil
}

// CompareReleases orders two A.B.X[.Y] release names.
func CompareReleases(a, b string) int {
	return compareVersions(splitNumbers(a, "."), splitNumbers(b, "."))
}

// IsBranchTag reports whether a tag is a branch tag, which carries a
// fourth numeric field.
func IsBranchTag(tag string) bool {
	return len(strings.Split(tag, "-")) > 4
}

func tagElements(tag string) []int {
	parts := strings.Split(tag, "-")
	if len(parts) < 2 {
		return nil
	}
	return toNumbers(parts[1:])
}

func splitNumbers(s, sep string) []int {
	return toNumbers(strings.Split(s, sep))
}

func toNumbers(parts []string) []int {
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			// Non-numeric elements sort as zero.
			n = 0
		}
		nums = append(nums, n)
	}
	return nums
}

// compareVersions walks two numeric element lists from the front. A
// shorter list that is a prefix of the longer sorts first.
func compareVersions(v1, v2 []int) int {
	for i := 0; i < len(v1) || i < len(v2); i++ {
		if i >= len(v1) {
			return -1
		}
		if i >= len(v2) {
			return 1
		}
		if v1[i] > v2[i] {
			return 1
		}
		if v1[i] < v2[i] {
			return -1
		}
	}
	return 0
}
