package source

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/releaseplan/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Formats
// =============================================================================

// Format names an analysis document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat resolves a format name ("json", "yaml", "yml").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", NewSourceError("ParseFormat", "", "unknown format "+name, ErrUnsupportedFormat)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", NewSourceError("FormatFromPath", path, "missing file extension", ErrUnsupportedFormat)
	}
	return ParseFormat(ext)
}

// =============================================================================
// File Loading
// =============================================================================

// LoadFile reads an analysis document, choosing the decoder from the file extension.
func LoadFile(path string) (domain.Analysis, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return domain.Analysis{}, err
	}
	return LoadFileAs(path, format)
}

// LoadFileAs reads an analysis document in the given format, ignoring the extension.
func LoadFileAs(path string, format Format) (domain.Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Analysis{}, NewSourceError("LoadFileAs", path, "file does not exist", ErrNotFound)
		}
		return domain.Analysis{}, NewSourceError("LoadFileAs", path, err.Error(), err)
	}
	defer f.Close()

	a, err := Decode(f, format)
	if err != nil {
		var srcErr *SourceError
		if errors.As(err, &srcErr) {
			srcErr.Location = path
		}
		return domain.Analysis{}, err
	}
	return a, nil
}

// Decode reads one analysis document from r. An empty document is a valid,
// empty analysis.
func Decode(r io.Reader, format Format) (domain.Analysis, error) {
	var a domain.Analysis

	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&a)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&a)
	default:
		return a, NewSourceError("Decode", "", "unknown format "+string(format), ErrUnsupportedFormat)
	}

	if errors.Is(err, io.EOF) {
		return domain.Analysis{}, nil
	}
	if err != nil {
		return domain.Analysis{}, NewSourceError("Decode", "", err.Error(), ErrInvalidInput)
	}
	return a, nil
}
