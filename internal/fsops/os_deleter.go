package fsops

import "os"

// OSDeleter implements Deleter using real os package calls.
// Directories are removed with everything beneath them; files and symlinks
// are removed as single entries. Symlinks are never followed.
type OSDeleter struct{}

func (OSDeleter) Delete(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		// os.RemoveAll treats a missing path as success, callers must see it
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}
