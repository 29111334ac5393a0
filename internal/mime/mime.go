// Package mime maps file extensions to content types using a mime.types
// style table loaded once at startup.
package mime

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Default is returned for extensions the registry does not know.
const Default = "application/octet-stream"

// FileError reports a MIME map file that could not be used.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("mime map %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Registry is an immutable extension to content type table.
// It is safe for concurrent use once built.
type Registry struct {
	types map[string]string
}

// New builds a registry from an in-memory table. The map is copied.
func New(types map[string]string) *Registry {
	r := &Registry{types: make(map[string]string, len(types))}
	for ext, typ := range types {
		r.types[ext] = typ
	}
	return r
}

// Load reads the MIME map at path. The path must name a regular file.
func Load(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &FileError{Path: path, Err: fmt.Errorf("not a regular file")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return r, nil
}

// Parse reads a MIME map from r.
//
// Every non-empty line without a '#' is split on whitespace. The first field
// is the content type and each following field is an extension mapped to it.
// Lines with fewer than two fields are ignored. A leading byte order mark is
// dropped.
func Parse(r io.Reader) (*Registry, error) {
	reg := &Registry{types: make(map[string]string)}

	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.Contains(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		typ := fields[0]
		for _, ext := range fields[1:] {
			reg.types[ext] = typ
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mime map: %w", err)
	}
	return reg, nil
}

// maxLineBytes bounds one line of a MIME map. Long alias lists are fine; a
// file with no newlines in the first 16 MiB is not a MIME map.
const maxLineBytes = 16 << 20

// Lookup returns the content type for ext, or Default.
func (r *Registry) Lookup(ext string) string {
	if r == nil || ext == "" {
		return Default
	}
	if typ, ok := r.types[ext]; ok {
		return typ
	}
	return Default
}

// TypeOf returns the content type for a request target or file path.
func (r *Registry) TypeOf(target string) string {
	return r.Lookup(Extension(target))
}

// Len reports the number of extensions known to the registry.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.types)
}

// Extension returns the part of target after the last '/' and then after the
// last '.' within that. A name without a dot is returned whole, which simply
// misses in Lookup.
func Extension(target string) string {
	name := target[strings.LastIndex(target, "/")+1:]
	return name[strings.LastIndex(name, ".")+1:]
}
