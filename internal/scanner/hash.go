// ABOUTME: Content hashing for scan memoization and threat lookups.
// ABOUTME: Byte-identical trees always hash identically, regardless of mtimes.

package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/sigil-dev/sigil/internal/types"
)

// HashTree computes a SHA-256 digest over the sorted relative paths and raw
// bytes of every file under root. Two byte-identical trees hash identically
// on any machine, which is what makes scan results content-addressable.
func HashTree(root string) (string, error) {
	if _, err := os.Stat(root); err != nil {
		return "", &types.InputError{Target: root, Err: err}
	}

	files, err := listFiles(root)
	if err != nil {
		return "", &types.InputError{Target: root, Err: err}
	}

	h := sha256.New()
	for _, rel := range files {
		io.WriteString(h, rel)
		h.Write([]byte{0})
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", &types.InputError{Target: root, Err: err}
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", &types.InputError{Target: root, Err: err}
		}
		f.Close()
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
