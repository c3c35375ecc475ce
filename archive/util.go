package archive

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var errTmpNameExhausted = errors.New("archive: could not allocate a temporary file name")

// removeEmptyParents walks upward from dir, removing directories that
// have become empty, stopping as soon as one is non-empty, the
// filesystem root is reached, or topLevelOnly is set (in which case
// only dir itself is considered).
func removeEmptyParents(dir string, topLevelOnly bool) {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		if topLevelOnly {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// makeTmpName returns a name, derived from name but guaranteed not to
// currently exist in dir, suitable for staging a replacement file
// before an atomic rename.
func makeTmpName(dir, name string) (string, error) {
	for i := 0; i < 100; i++ {
		candidate := filepath.Join(dir, name+"."+uuid.New().String()+".tmp")
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", errTmpNameExhausted
}
