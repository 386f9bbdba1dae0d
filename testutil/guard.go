// Package testutil keeps the pipeline packages free of storage drivers.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// storagePrefixes are the blob and index layers and the SDKs behind them.
var storagePrefixes = []string{
	"growthindex/internal/blob",
	"growthindex/internal/docstore",
	"growthindex/internal/ingest",
	"github.com/aws/aws-sdk-go-v2",
	"github.com/jackc/pgx",
	"modernc.org/sqlite",
}

// StorageImportForbidden matches import paths of the storage layers.
func StorageImportForbidden(path string) bool {
	for _, prefix := range storagePrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"@") {
			return true
		}
	}
	return false
}

// fataler is the part of testing.TB the guard needs.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// AssertNoDirectImports fails t when a non-test .go file directly in dir
// imports a path matched by forbidden.
func AssertNoDirectImports(t fataler, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	found, err := forbiddenImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(found) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(found, "\n"))
	}
}

// forbiddenImports returns "file: import" entries sorted by file.
func forbiddenImports(dir string, forbidden func(string) bool) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var found []string
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range f.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			if forbidden(path) {
				found = append(found, filepath.Base(file)+": "+path)
			}
		}
	}
	sort.Strings(found)
	return found, nil
}
