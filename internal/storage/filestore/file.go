package filestore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/makkenzo/device-license-api/internal/ierr"
)

const (
	LicenseFileName    = "licenses.txt"
	ActivationFileName = "activations.txt"

	fieldSeparator = ";"
)

// lineFile is a newline separated record file that is always replaced as a whole.
type lineFile struct {
	path string
}

// readLines returns every non-blank line. A missing file reads as empty.
func (f *lineFile) readLines() ([]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ierr.ErrStorage, f.path, err)
	}

	lines := make([]string, 0, bytes.Count(raw, []byte{'\n'})+1)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ierr.ErrStorage, f.path, err)
	}
	return lines, nil
}

// writeLines serializes everything in memory, writes a temp file next to the
// target and renames it into place, so a failed write keeps the old contents.
func (f *lineFile) writeLines(lines []string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir %s: %v", ierr.ErrStorage, dir, err)
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ierr.ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ierr.ErrStorage, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %v", ierr.ErrStorage, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ierr.ErrStorage, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", ierr.ErrStorage, tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ierr.ErrStorage, f.path, err)
	}
	return nil
}

// Ping checks that the data directory exists or can be created.
func Ping(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: data dir %s: %v", ierr.ErrStorage, dir, err)
	}
	return nil
}
