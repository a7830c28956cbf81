package svnsource

import (
	"fmt"
	"os"
	"strings"

	cp "github.com/otiai10/copy"
)

// Materialize copies an already-fetched package tree into dst,
// replacing whatever is there.
func Materialize(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrPathMissing, src)
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return cp.Copy(src, dst, cp.Options{OnSymlink: func(string) cp.SymlinkAction {
		return cp.Shallow
	}})
}

// LoadVetoFile reads newline-separated path elements to prune from
// package discovery. A missing file yields an empty veto list.
func LoadVetoFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var veto []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			veto = append(veto, line)
		}
	}
	return veto, nil
}
