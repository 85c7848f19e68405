package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// SchemaVersion is the only manifest schema this host understands.
	SchemaVersion = 1

	DefaultEntry = "plugin.js"
	DefaultIcon  = "icon.svg"
)

// ManifestNames lists accepted manifest filenames in precedence order.
var ManifestNames = []string{"plugin.json", "plugin.yaml", "plugin.yml", "plugin.toml"}

// Scope places a manifest line in the overview or only in the detail view.
type Scope string

const (
	ScopeOverview Scope = "overview"
	ScopeDetail   Scope = "detail"
)

// ManifestLine declares a line the probe is expected to report.
type ManifestLine struct {
	Type         string `json:"type"`
	Label        string `json:"label"`
	Scope        Scope  `json:"scope"`
	PrimaryOrder *int   `json:"primaryOrder,omitempty"`
}

// Manifest is the parsed plugin manifest.
type Manifest struct {
	SchemaVersion int            `json:"schemaVersion"`
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Entry         string         `json:"entry,omitempty"`
	Icon          string         `json:"icon,omitempty"`
	BrandColor    *string        `json:"brandColor,omitempty"`
	Lines         []ManifestLine `json:"lines,omitempty"`

	version *semver.Version
}

// SemVer returns the parsed version.
func (m *Manifest) SemVer() *semver.Version {
	return m.version
}

// RejectReason classifies why a manifest was not accepted.
type RejectReason string

const (
	RejectParse     RejectReason = "parse"
	RejectSchema    RejectReason = "schema"
	RejectVersion   RejectReason = "version"
	RejectEntry     RejectReason = "entry"
	RejectDuplicate RejectReason = "duplicate"
)

// ManifestError is returned for manifests that cannot be used.
type ManifestError struct {
	Path   string
	Reason RejectReason
	Err    error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

const manifestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["schemaVersion", "id", "name", "version"],
	"properties": {
		"schemaVersion": {"const": 1},
		"id": {"type": "string", "pattern": "^[a-z0-9][a-z0-9-_]*$", "maxLength": 64},
		"name": {"type": "string", "minLength": 1},
		"version": {"type": "string", "minLength": 1},
		"entry": {"type": "string", "minLength": 1},
		"icon": {"type": "string", "minLength": 1},
		"brandColor": {"type": "string"},
		"lines": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "label", "scope"],
				"properties": {
					"type": {"enum": ["text", "progress", "badge"]},
					"label": {"type": "string", "minLength": 1},
					"scope": {"enum": ["overview", "detail"]},
					"primaryOrder": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.json", strings.NewReader(manifestSchema)); err != nil {
		panic(fmt.Sprintf("plugin: manifest schema: %v", err))
	}
	return compiler.MustCompile("manifest.json")
}

// ParseManifest decodes a manifest by its file extension, validates it and
// fills defaults.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	doc, err := toJSON(path, data)
	if err != nil {
		return nil, &ManifestError{Path: path, Reason: RejectParse, Err: err}
	}

	var generic interface{}
	if err := sonic.Unmarshal(doc, &generic); err != nil {
		return nil, &ManifestError{Path: path, Reason: RejectParse, Err: err}
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, &ManifestError{Path: path, Reason: RejectSchema, Err: schemaError(err)}
	}

	var m Manifest
	if err := sonic.Unmarshal(doc, &m); err != nil {
		return nil, &ManifestError{Path: path, Reason: RejectParse, Err: err}
	}

	m.version, err = semver.NewVersion(m.Version)
	if err != nil {
		return nil, &ManifestError{Path: path, Reason: RejectVersion, Err: err}
	}

	if m.Entry == "" {
		m.Entry = DefaultEntry
	}
	if m.Icon == "" {
		m.Icon = DefaultIcon
	}
	for _, rel := range []string{m.Entry, m.Icon} {
		if !filepath.IsLocal(rel) {
			return nil, &ManifestError{Path: path, Reason: RejectEntry, Err: fmt.Errorf("%q escapes the plugin directory", rel)}
		}
	}
	return &m, nil
}

// toJSON normalizes any accepted manifest format to JSON bytes.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
		return yaml.YAMLToJSON(data)
	case ".toml":
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return sonic.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", filepath.Ext(path))
	}
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	// The deepest cause names the offending field.
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Errorf("%s: %s", loc, ve.Message)
}
