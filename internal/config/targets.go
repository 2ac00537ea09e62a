package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"gitops-replacer/internal/gate"
	"gitops-replacer/internal/repository"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// TopLevelKey is the batch file key holding the target list.
const TopLevelKey = "gitops-replacer"

// ErrNoEntry is returned when a batch file parses but has no TopLevelKey.
// Callers treat it as "nothing to do" rather than a failure.
var ErrNoEntry = errors.New("no gitops-replacer entry found in config")

// Target is one marked location to update.
type Target struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	File       string `json:"file"`
	DepName    string `json:"depName"`

	// When and Except are nil when the key is absent. A present empty
	// pattern is kept: it matches every reference.
	When   *string `json:"when,omitempty"`
	Except *string `json:"except,omitempty"`

	// Policy is compiled from When and Except at load time.
	Policy gate.Policy `json:"-"`
}

// Ref returns the location of the target file.
func (t Target) Ref() repository.Ref {
	return repository.Ref{Repository: t.Repository, Branch: t.Branch, Path: t.File}
}

// Format is the encoding of a batch file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the format from the file extension. Anything that is not
// .json or .toml is read as YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// LoadTargets reads, schema-checks and compiles the batch file at path.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	targets, err := DecodeTargets(data, FormatForPath(path))
	if err != nil {
		if errors.Is(err, ErrNoEntry) {
			return nil, err
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return targets, nil
}

// DecodeTargets parses a batch document in the given format.
func DecodeTargets(data []byte, format Format) ([]Target, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("file is empty")
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level must be a mapping, got %T", doc)
	}
	if _, ok := root[TopLevelKey]; !ok {
		return nil, ErrNoEntry
	}

	if err := validateDocument(root); err != nil {
		return nil, err
	}

	// The document is schema-valid, so a JSON round trip maps it onto Target
	// regardless of the source format.
	raw, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var batch struct {
		Targets []Target `json:"gitops-replacer"`
	}
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}

	for i := range batch.Targets {
		t := &batch.Targets[i]
		policy, err := gate.CompilePatterns(t.When, t.Except)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, t.Ref(), err)
		}
		t.Policy = policy
	}
	return batch.Targets, nil
}

func decodeDocument(data []byte, format Format) (any, error) {
	switch format {
	case FormatJSON:
		var doc any
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return doc, nil
	case FormatTOML:
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		if len(doc) == 0 {
			return nil, nil
		}
		return doc, nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}
