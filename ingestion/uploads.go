package ingestion

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// cleanFilename strips any directory components a client may have sent.
func cleanFilename(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return name, nil
}

func (p *Pipeline) uploadPath(storedAs string) string {
	return filepath.Join(p.uploadDir, storedAs)
}

func (p *Pipeline) writeUpload(storedAs string, data []byte) error {
	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}
	if err := os.WriteFile(p.uploadPath(storedAs), data, 0o644); err != nil {
		return fmt.Errorf("saving upload: %w", err)
	}
	return nil
}

// removeUpload deletes a stored upload. A missing file is not an error.
func (p *Pipeline) removeUpload(storedAs string) error {
	if storedAs == "" {
		return nil
	}
	err := os.Remove(p.uploadPath(storedAs))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
