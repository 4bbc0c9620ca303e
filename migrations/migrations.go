// Package migrations embeds the SQL schema so cmd/migrate and integration tests share one source.
package migrations

import (
	"embed"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
)

//go:embed *.sql
var FS embed.FS

// Files returns the embedded migration names in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Dir is the on-disk location of this package, used by testcontainers init scripts.
func Dir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}
