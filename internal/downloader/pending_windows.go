//go:build windows

package downloader

import (
	"errors"
	"os"
	"path/filepath"
)

// renameio has no Windows support; this keeps the same commit semantics
// with a temp file in the target directory.
type windowsPendingFile struct {
	*os.File
	path string
	done bool
}

func newPendingFile(path string) (pendingFile, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &windowsPendingFile{File: f, path: path}, nil
}

func (p *windowsPendingFile) Cleanup() error {
	if p.done {
		return nil
	}
	closeErr := p.File.Close()
	if err := os.Remove(p.File.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if errors.Is(closeErr, os.ErrClosed) {
		return nil
	}
	return closeErr
}

func (p *windowsPendingFile) CloseAtomicallyReplace() error {
	if err := p.File.Sync(); err != nil {
		return err
	}
	if err := p.File.Close(); err != nil {
		return err
	}
	if err := os.Rename(p.File.Name(), p.path); err != nil {
		return err
	}
	p.done = true
	return nil
}
