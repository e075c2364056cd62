// Package loader reads configuration sources into nested maps.
//
// Files are parsed as TOML or YAML depending on their extension.
// Environment variables are mapped onto dot-separated paths.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Loader is a configuration source.
type Loader interface {
	// Load returns the source as a nested map. A missing source yields
	// nil, nil.
	Load() (map[string]any, error)
}

// Format is a configuration file syntax.
type Format int

const (
	FormatUnknown Format = iota
	FormatTOML
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// DetectFormat picks the format from a file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// FileLoader loads one configuration file.
type FileLoader struct {
	path     string
	format   Format
	readFile func(string) ([]byte, error)
}

// NewFileLoader creates a loader for path. The format follows the
// extension.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{
		path:     path,
		format:   DetectFormat(path),
		readFile: os.ReadFile,
	}
}

// NewFileLoaderFS creates a loader reading path from fsys.
func NewFileLoaderFS(fsys fs.FS, path string) *FileLoader {
	l := NewFileLoader(path)
	l.readFile = func(name string) ([]byte, error) {
		return fs.ReadFile(fsys, name)
	}
	return l
}

// Path returns the file path.
func (l *FileLoader) Path() string {
	return l.path
}

// Load reads and parses the file.
func (l *FileLoader) Load() (map[string]any, error) {
	if l.path == "" {
		return nil, nil
	}
	data, err := l.readFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
	}
	return Parse(l.path, l.format, data)
}

// Parse decodes data in the given format. source names the data in errors.
func Parse(source string, format Format, data []byte) (map[string]any, error) {
	var config map[string]any
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &config)
	case FormatYAML:
		err = yaml.Unmarshal(data, &config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, source)
	}
	if err != nil {
		return nil, &ParseError{Path: source, Format: format, Message: err.Error(), Err: err}
	}
	return normalize(config), nil
}

// normalize converts nested map types produced by the decoders into
// map[string]any.
func normalize(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalize(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}
		return val
	default:
		return v
	}
}

// ParseError describes a file that could not be decoded.
type ParseError struct {
	Path    string
	Format  Format
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s (%s): %s", e.Path, e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DeepMerge merges src into dst and returns dst. Nested maps merge
// recursively; any other src value replaces the dst value.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			dst[key] = Clone(srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}

// Clone returns a deep copy of a configuration map.
func Clone(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, val := range src {
		dst[key] = cloneValue(val)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Clone(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
