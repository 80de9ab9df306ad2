package plugin

import (
	"fmt"
	"regexp"
	"strings"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// LoadError is returned by Registry.Load/LoadMany. Code is one of
// plugin_invalid, plugin_not_allowed, plugin_missing.
type LoadError struct {
	Code string
	Name string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s:%s", e.Code, e.Name)
}

// Registry holds the compiled-in plugin set, keyed by short name, optionally
// constrained by an allow-list.
type Registry struct {
	plugins   map[string]Plugin
	allowlist map[string]bool
}

// NewRegistry builds a Registry. allowlist, if non-empty, restricts Load to
// only the listed names.
func NewRegistry(allowlist []string) *Registry {
	r := &Registry{plugins: map[string]Plugin{}}
	if len(allowlist) > 0 {
		r.allowlist = make(map[string]bool, len(allowlist))
		for _, n := range allowlist {
			r.allowlist[normalizeName(n)] = true
		}
	}
	return r
}

// Register adds a compiled-in plugin under its own Name().
func (r *Registry) Register(p Plugin) {
	r.plugins[normalizeName(p.Name())] = p
}

// Load resolves one plugin by name, applying the allow-list and name format
// check the same way the reference implementation's loader does.
func (r *Registry) Load(name string) (Plugin, error) {
	normalized := normalizeName(name)
	if normalized == "" || !namePattern.MatchString(normalized) {
		return nil, &LoadError{Code: "plugin_invalid", Name: name}
	}
	if r.allowlist != nil && !r.allowlist[normalized] {
		return nil, &LoadError{Code: "plugin_not_allowed", Name: normalized}
	}
	p, ok := r.plugins[normalized]
	if !ok {
		return nil, &LoadError{Code: "plugin_missing", Name: normalized}
	}
	return p, nil
}

// LoadMany resolves an ordered, de-duplicated plugin chain by name. It stops
// and returns the first load error, formatted "<code>:<name>".
func (r *Registry) LoadMany(names []string) ([]Plugin, error) {
	var out []Plugin
	seen := map[string]bool{}
	for _, raw := range normalizeNames(names) {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		p, err := r.Load(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		v := normalizeName(n)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
