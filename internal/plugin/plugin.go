package plugin

import (
	"sort"

	"github.com/GriffinCanCode/probehost/internal/runtime"
)

// Plugin is a discovered, loadable plugin.
type Plugin struct {
	Manifest     *Manifest
	Dir          string
	ManifestPath string
	EntryPath    string
	Script       string
	IconDataURL  string

	// Root is the index of the plugin root it was found in.
	Root int
}

// ID returns the manifest id.
func (p *Plugin) ID() string { return p.Manifest.ID }

// Name returns the display name.
func (p *Plugin) Name() string { return p.Manifest.Name }

// Descriptor is what the runtime needs to execute the plugin.
func (p *Plugin) Descriptor() runtime.Descriptor {
	return runtime.Descriptor{
		ID:       p.Manifest.ID,
		Script:   p.Script,
		Filename: p.EntryPath,
	}
}

// MetaLine is a manifest line as listed to clients.
type MetaLine struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Scope Scope  `json:"scope"`
}

// Meta is the list view of a plugin.
type Meta struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Version           string     `json:"version"`
	IconURL           string     `json:"iconUrl"`
	BrandColor        *string    `json:"brandColor"`
	Lines             []MetaLine `json:"lines"`
	PrimaryCandidates []string   `json:"primaryCandidates"`
}

// Meta builds the list view. Primary candidates are the progress lines that
// declare a primaryOrder, sorted by it.
func (p *Plugin) Meta() Meta {
	m := p.Manifest
	lines := make([]MetaLine, 0, len(m.Lines))
	var candidates []ManifestLine
	for _, l := range m.Lines {
		lines = append(lines, MetaLine{Type: l.Type, Label: l.Label, Scope: l.Scope})
		if l.Type == "progress" && l.PrimaryOrder != nil {
			candidates = append(candidates, l)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return *candidates[i].PrimaryOrder < *candidates[j].PrimaryOrder
	})

	primary := make([]string, 0, len(candidates))
	for _, c := range candidates {
		primary = append(primary, c.Label)
	}

	return Meta{
		ID:                m.ID,
		Name:              m.Name,
		Version:           m.Version,
		IconURL:           p.IconDataURL,
		BrandColor:        m.BrandColor,
		Lines:             lines,
		PrimaryCandidates: primary,
	}
}
