package diff

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FullDBFile receives the diff when no schemas are configured.
const FullDBFile = "full_db.sql"

// SchemaFile is the file receiving the diff of schema.
func SchemaFile(schema string) string {
	return schema + ".sql"
}

// CheckOutputDir verifies that dir exists, is a directory and accepts new
// files.
func CheckOutputDir(fs afero.Fs, dir string) error {
	info, err := fs.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s: not a directory", dir)
	}
	probe, err := afero.TempFile(fs, dir, ".pgdiff-*")
	if err != nil {
		return fmt.Errorf("output directory %s: not writable: %w", dir, err)
	}
	probe.Close()
	if err = fs.Remove(probe.Name()); err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	return nil
}

// writeSQL replaces the content of name in dir with the normalized sql.
func writeSQL(fs afero.Fs, dir string, name string, sql string) (path string, err error) {
	path = filepath.Join(dir, name)
	err = afero.WriteFile(fs, path, []byte(NormalizeSQL(sql)), os.FileMode(0o644))
	if err != nil {
		err = fmt.Errorf("failed to write %s: %w", path, err)
	}
	return
}
