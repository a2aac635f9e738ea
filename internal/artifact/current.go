package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CurrentFile names the file under the artifacts root holding the active bundle id.
const CurrentFile = "CURRENT"

var ErrNoActiveBundle = errors.New("artifact: no active bundle")

// Activate points CURRENT at bundle id. The pointer is replaced with a
// rename so readers never observe a partially written id.
func Activate(root, id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid bundle id %q", id)
	}
	info, err := os.Stat(filepath.Join(root, id))
	if err != nil {
		return fmt.Errorf("activate bundle %s: %w", id, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("activate bundle %s: not a directory", id)
	}

	tmp, err := os.CreateTemp(root, ".current-")
	if err != nil {
		return fmt.Errorf("create temp pointer: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp pointer: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(root, CurrentFile)); err != nil {
		return fmt.Errorf("replace %s: %w", CurrentFile, err)
	}
	return nil
}

// Current returns the active bundle id.
func Current(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoActiveBundle
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", CurrentFile, err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", ErrNoActiveBundle
	}
	return id, nil
}

// LoadCurrent loads the bundle CURRENT points at.
func LoadCurrent(root string) (*Bundle, error) {
	id, err := Current(root)
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(root, id))
}
