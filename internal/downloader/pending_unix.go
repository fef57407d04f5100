//go:build !windows

package downloader

import (
	"path/filepath"

	"github.com/google/renameio/v2"
)

func newPendingFile(path string) (pendingFile, error) {
	// The temp file stays next to the target so job cleanup covers it.
	pf, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return nil, err
	}
	return pf, nil
}
