package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive stores processed source documents so the dashboard can display
// them. Successful and failed receipts land in separate folders; the
// returned reference is what a record carries as its document reference.
type Archive interface {
	// Save writes the document under its canonical name and returns its
	// reference.
	Save(name string, data []byte, status Status) (string, error)

	// Get retrieves an archived document by reference.
	Get(ref string) ([]byte, error)
}

// LocalArchive implements the Archive interface on the local filesystem.
type LocalArchive struct {
	basePath string
}

const (
	successDir = "success_pdfs"
	failedDir  = "error_pdfs"
)

// NewLocalArchive creates a LocalArchive rooted at basePath, creating the
// outcome directories if they don't exist.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	for _, dir := range []string{successDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Save writes the document into the folder matching its outcome.
func (l *LocalArchive) Save(name string, data []byte, status Status) (string, error) {
	dir := failedDir
	if status == StatusSuccess {
		dir = successDir
	}
	ref := filepath.Join(dir, name)
	if err := os.WriteFile(filepath.Join(l.basePath, ref), data, 0644); err != nil {
		return "", fmt.Errorf("writing archived document: %w", err)
	}
	return ref, nil
}

// Get retrieves an archived document by reference.
func (l *LocalArchive) Get(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, ref))
	if err != nil {
		return nil, fmt.Errorf("reading archived document: %w", err)
	}
	return data, nil
}
