package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestFormats(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
	}{
		{
			name: "json",
			path: "plugin.json",
			data: `{"schemaVersion":1,"id":"mock","name":"Mock","version":"1.2.0",
				"lines":[{"type":"progress","label":"Session","scope":"overview","primaryOrder":1}]}`,
		},
		{
			name: "yaml",
			path: "plugin.yaml",
			data: "schemaVersion: 1\nid: mock\nname: Mock\nversion: 1.2.0\nlines:\n  - type: progress\n    label: Session\n    scope: overview\n    primaryOrder: 1\n",
		},
		{
			name: "toml",
			path: "plugin.toml",
			data: "schemaVersion = 1\nid = \"mock\"\nname = \"Mock\"\nversion = \"1.2.0\"\n\n[[lines]]\ntype = \"progress\"\nlabel = \"Session\"\nscope = \"overview\"\nprimaryOrder = 1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest(tt.path, []byte(tt.data))
			require.NoError(t, err)

			assert.Equal(t, "mock", m.ID)
			assert.Equal(t, "Mock", m.Name)
			assert.Equal(t, "1.2.0", m.SemVer().String())
			assert.Equal(t, DefaultEntry, m.Entry)
			assert.Equal(t, DefaultIcon, m.Icon)
			require.Len(t, m.Lines, 1)
			assert.Equal(t, ScopeOverview, m.Lines[0].Scope)
			require.NotNil(t, m.Lines[0].PrimaryOrder)
			assert.Equal(t, 1, *m.Lines[0].PrimaryOrder)
		})
	}
}

func TestParseManifestRejects(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		data   string
		reason RejectReason
	}{
		{"malformed json", "plugin.json", `{`, RejectParse},
		{"unknown format", "plugin.ini", `id=x`, RejectParse},
		{"missing name", "plugin.json", `{"schemaVersion":1,"id":"a","version":"1.0.0"}`, RejectSchema},
		{"bad id", "plugin.json", `{"schemaVersion":1,"id":"Bad Id","name":"A","version":"1.0.0"}`, RejectSchema},
		{"wrong schema version", "plugin.json", `{"schemaVersion":2,"id":"a","name":"A","version":"1.0.0"}`, RejectSchema},
		{"fractional schema version", "plugin.json", `{"schemaVersion":1.5,"id":"a","name":"A","version":"1.0.0"}`, RejectSchema},
		{"string schema version", "plugin.json", `{"schemaVersion":"1","id":"a","name":"A","version":"1.0.0"}`, RejectSchema},
		{"bad line scope", "plugin.json", `{"schemaVersion":1,"id":"a","name":"A","version":"1.0.0","lines":[{"type":"text","label":"x","scope":"side"}]}`, RejectSchema},
		{"bad version", "plugin.json", `{"schemaVersion":1,"id":"a","name":"A","version":"latest"}`, RejectVersion},
		{"escaping entry", "plugin.json", `{"schemaVersion":1,"id":"a","name":"A","version":"1.0.0","entry":"../x.js"}`, RejectEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.path, []byte(tt.data))
			var me *ManifestError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.reason, me.Reason)
			assert.Contains(t, err.Error(), tt.path)
		})
	}
}

func TestParseManifestAllowsExtraKeys(t *testing.T) {
	m, err := ParseManifest("plugin.json", []byte(`{"schemaVersion":1,"id":"a","name":"A","version":"0.1.0","links":[]}`))
	require.NoError(t, err)
	assert.Empty(t, m.Lines)
}

func TestMetaPrimaryCandidates(t *testing.T) {
	two, one := 2, 1
	p := &Plugin{
		Manifest: &Manifest{
			ID:   "cursor",
			Name: "Cursor",
			Lines: []ManifestLine{
				{Type: "progress", Label: "On-demand", Scope: ScopeDetail, PrimaryOrder: &two},
				{Type: "text", Label: "Plan", Scope: ScopeOverview, PrimaryOrder: &one},
				{Type: "progress", Label: "Plan usage", Scope: ScopeOverview, PrimaryOrder: &one},
				{Type: "progress", Label: "Unranked", Scope: ScopeOverview},
			},
		},
		IconDataURL: "data:image/svg+xml;base64,AA==",
	}

	meta := p.Meta()
	assert.Equal(t, []string{"Plan usage", "On-demand"}, meta.PrimaryCandidates)
	assert.Len(t, meta.Lines, 4)
	assert.Equal(t, "data:image/svg+xml;base64,AA==", meta.IconURL)
}
