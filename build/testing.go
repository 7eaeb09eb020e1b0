package build

import (
	"os"
	"path/filepath"
)

// TempDir joins the provided directory names with the system's temp
// directory under a namespace for this program, and removes any
// pre-existing directory at that path. Package tests use it as
// build.TempDir(persistDir, t.Name()) to get an isolated scratch dir.
func TempDir(dirs ...string) string {
	path := filepath.Join(append([]string{os.TempDir(), "BLSCTWalletTesting"}, dirs...)...)
	err := os.RemoveAll(path)
	if err != nil {
		panic(err)
	}
	return path
}
