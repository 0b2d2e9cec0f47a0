package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"pdfchat/internal/domain"
)

// LoadFiles reads the files named by paths into uploads, in argument order.
// Each argument may be a glob pattern; a pattern matching nothing is read as
// a literal path.
func LoadFiles(paths []string) ([]domain.Upload, error) {
	var uploads []domain.Upload
	seen := make(map[string]struct{})
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, domain.Upload{Name: filepath.Base(m), Data: data})
		}
	}
	return uploads, nil
}
