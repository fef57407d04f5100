package downloader

import "io"

// pendingFile is a file that only appears at its final path once committed.
type pendingFile interface {
	io.Writer
	// Cleanup removes the temporary file unless it was committed.
	Cleanup() error
	// CloseAtomicallyReplace syncs and renames the file into place.
	CloseAtomicallyReplace() error
}
