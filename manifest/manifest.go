// Package manifest reads candidate manifests: YAML, TOML or JSON documents
// listing named-factory candidates published by one package.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/hotswap/feeders"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Static errors for manifest package
var (
	ErrInvalidManifest   = errors.New("invalid manifest")
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

// Manifest is one package's candidate offering.
type Manifest struct {
	Package    string          `yaml:"package" toml:"package" json:"package"`
	Path       string          `yaml:"path" toml:"path" json:"path"`
	Priority   *int            `yaml:"priority" toml:"priority" json:"priority,omitempty"`
	Source     registry.Source `yaml:"source" toml:"source" json:"source"`
	Candidates []Entry         `yaml:"candidates" toml:"candidates" json:"candidates"`

	file string
}

// Entry describes one candidate. Factory is a "module:Symbol" reference.
type Entry struct {
	Domain     string         `yaml:"domain" toml:"domain" json:"domain"`
	Key        string         `yaml:"key" toml:"key" json:"key"`
	Provider   string         `yaml:"provider" toml:"provider" json:"provider"`
	Factory    string         `yaml:"factory" toml:"factory" json:"factory"`
	StackLevel int            `yaml:"stack_level" toml:"stack_level" json:"stack_level"`
	Metadata   map[string]any `yaml:"metadata" toml:"metadata" json:"metadata,omitempty"`
}

// Registrar accepts batches of candidates. *registry.Resolver implements it.
type Registrar interface {
	RegisterBatch(packageName, path string, candidates []registry.Candidate, priority *int) []registry.Candidate
}

// Load reads and validates the manifest at path; the format follows the
// file extension.
func Load(path string) (*Manifest, error) {
	f, err := feeders.ForFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	m := &Manifest{}
	if err := f.Feed(m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	m.file = path
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest in the given format ("yaml", "toml" or "json").
func Parse(data []byte, format string) (*Manifest, error) {
	m := &Manifest{}
	var err error
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, m)
	case "toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(m)
	case "json":
		err = json.Unmarshal(data, m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// File returns the path the manifest was loaded from, if any.
func (m *Manifest) File() string { return m.file }

// Validate checks required fields, factory references and duplicate
// providers.
func (m *Manifest) Validate() error {
	var problems []string
	if strings.TrimSpace(m.Package) == "" {
		problems = append(problems, "package is required")
	}
	seen := make(map[string]int)
	for i, e := range m.Candidates {
		if e.Domain == "" || e.Key == "" || e.Provider == "" {
			problems = append(problems, fmt.Sprintf("candidates[%d]: domain, key and provider are required", i))
			continue
		}
		if _, err := registry.ParseFactoryRef(e.Factory); err != nil {
			problems = append(problems, fmt.Sprintf("candidates[%d]: %v", i, err))
		}
		id := e.Domain + "/" + e.Key + "/" + e.Provider
		if j, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("candidates[%d]: duplicates candidates[%d] (%s)", i, j, id))
		}
		seen[id] = i
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(problems, "; "))
	}
	return nil
}

// SourcePath is the path used for priority inference: the declared path,
// or the directory the manifest was loaded from.
func (m *Manifest) SourcePath() string {
	if m.Path != "" {
		return m.Path
	}
	if m.file != "" {
		return filepath.ToSlash(filepath.Dir(m.file))
	}
	return ""
}

// ToCandidates converts the entries to candidates. Priorities are assigned
// at registration.
func (m *Manifest) ToCandidates() ([]registry.Candidate, error) {
	source := m.Source
	if source == "" {
		source = registry.SourceLocalPackage
	}
	out := make([]registry.Candidate, 0, len(m.Candidates))
	for _, e := range m.Candidates {
		f, err := registry.ParseFactoryRef(e.Factory)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrInvalidManifest, e.Domain, e.Key, err)
		}
		metadata := make(map[string]any, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			metadata[k] = v
		}
		metadata["package"] = m.Package
		out = append(out, registry.Candidate{
			Domain:     e.Domain,
			Key:        e.Key,
			Provider:   e.Provider,
			Factory:    f,
			StackLevel: e.StackLevel,
			Source:     source,
			Metadata:   metadata,
		})
	}
	return out, nil
}

// Register submits the manifest's candidates as one batch.
func (m *Manifest) Register(r Registrar) ([]registry.Candidate, error) {
	cands, err := m.ToCandidates()
	if err != nil {
		return nil, err
	}
	return r.RegisterBatch(m.Package, m.SourcePath(), cands, m.Priority), nil
}
