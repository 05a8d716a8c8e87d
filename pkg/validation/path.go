package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathWithinRoot reports an error unless fullPath is root or lies below it
// once both are cleaned.
func PathWithinRoot(root, fullPath string) error {
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(fullPath)
	if cleanPath == cleanRoot || strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) {
		return nil
	}
	return fmt.Errorf("path %q escapes %q", fullPath, root)
}

// ChildDir joins name below root, refusing names that are not a single
// path element.
func ChildDir(root, name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid directory name %q", name)
	}
	dir := filepath.Join(root, name)
	if err := PathWithinRoot(root, dir); err != nil {
		return "", err
	}
	return dir, nil
}
