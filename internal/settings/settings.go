package settings

// PluginSettings is the user's plugin order and disabled set.
type PluginSettings struct {
	Order    []string `json:"order"`
	Disabled []string `json:"disabled"`
}

// Default returns empty settings. Every known plugin is enabled.
func Default() PluginSettings {
	return PluginSettings{Order: []string{}, Disabled: []string{}}
}

// Normalize reconciles s with the ids currently known. Unknown ids are
// dropped, the order is deduplicated and known ids missing from it are
// appended in their given order.
func Normalize(s PluginSettings, knownIDs []string) PluginSettings {
	known := make(map[string]struct{}, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}

	order := make([]string, 0, len(knownIDs))
	seen := make(map[string]struct{}, len(knownIDs))
	for _, id := range s.Order {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	for _, id := range knownIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			order = append(order, id)
		}
	}

	disabled := make([]string, 0, len(s.Disabled))
	for _, id := range s.Disabled {
		if _, ok := known[id]; ok {
			disabled = append(disabled, id)
		}
	}
	return PluginSettings{Order: order, Disabled: disabled}
}

// Equal compares both lists element by element.
func Equal(a, b PluginSettings) bool {
	return equalStrings(a.Order, b.Order) && equalStrings(a.Disabled, b.Disabled)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EnabledIDs returns the order without disabled ids.
func EnabledIDs(s PluginSettings) []string {
	disabled := make(map[string]struct{}, len(s.Disabled))
	for _, id := range s.Disabled {
		disabled[id] = struct{}{}
	}
	enabled := make([]string, 0, len(s.Order))
	for _, id := range s.Order {
		if _, off := disabled[id]; !off {
			enabled = append(enabled, id)
		}
	}
	return enabled
}

// SetEnabled returns s with id enabled or disabled.
func SetEnabled(s PluginSettings, id string, enabled bool) PluginSettings {
	disabled := make([]string, 0, len(s.Disabled)+1)
	for _, d := range s.Disabled {
		if d != id {
			disabled = append(disabled, d)
		}
	}
	if !enabled {
		disabled = append(disabled, id)
	}
	return PluginSettings{Order: append([]string(nil), s.Order...), Disabled: disabled}
}

// Move returns s with id placed at index in the order. Out of range
// indexes are clamped; an id not in the order is inserted.
func Move(s PluginSettings, id string, index int) PluginSettings {
	order := make([]string, 0, len(s.Order)+1)
	for _, o := range s.Order {
		if o != id {
			order = append(order, o)
		}
	}
	if index < 0 {
		index = 0
	}
	if index > len(order) {
		index = len(order)
	}
	order = append(order, "")
	copy(order[index+1:], order[index:])
	order[index] = id
	return PluginSettings{Order: order, Disabled: append([]string(nil), s.Disabled...)}
}
