package agents

import "strings"

// Capability is what a role is for. It shapes the execution prompt and
// decides whether cited references are fetched before the call.
type Capability string

const (
	CapResearch Capability = "research"
	CapStrategy Capability = "strategy"
	CapWriting  Capability = "writing"
	CapCode     Capability = "code"
	CapReview   Capability = "review"
)

type Role struct {
	Name         string       `json:"name"`
	Capabilities []Capability `json:"capabilities"`
	Guidance     string       `json:"guidance"`
}

func (r Role) Has(c Capability) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Registry is the fixed, ordered set of roles tasks may be assigned to.
type Registry struct {
	roles  []Role
	byName map[string]int
}

func NewRegistry(roles ...Role) *Registry {
	r := &Registry{byName: map[string]int{}}
	for _, role := range roles {
		if _, dup := r.byName[strings.ToLower(role.Name)]; dup {
			continue
		}
		r.byName[strings.ToLower(role.Name)] = len(r.roles)
		r.roles = append(r.roles, role)
	}
	return r
}

// DefaultRegistry returns the five built-in roles.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Role{Name: "Data Archaeologist", Capabilities: []Capability{CapResearch}, Guidance: "Dig up facts, sources and data. Cite where each finding came from."},
		Role{Name: "Narrative Architect", Capabilities: []Capability{CapStrategy}, Guidance: "Shape structure, audience and messaging before any prose is written."},
		Role{Name: "Protocol Scribe", Capabilities: []Capability{CapWriting}, Guidance: "Produce clear, complete written material in markdown."},
		Role{Name: "Synth-Code Engineer", Capabilities: []Capability{CapCode}, Guidance: "Write working code in fenced blocks with the language identifier."},
		Role{Name: "Chief Verifier", Capabilities: []Capability{CapReview}, Guidance: "Check prior output for errors, gaps and inconsistencies and list fixes."},
	)
}

// Lookup matches role names case-insensitively and returns the canonical role.
func (r *Registry) Lookup(name string) (Role, bool) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Role{}, false
	}
	return r.roles[i], true
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.roles))
	for i, role := range r.roles {
		out[i] = role.Name
	}
	return out
}

func (r *Registry) Roles() []Role {
	return append([]Role(nil), r.roles...)
}

// Default is the role new tasks get when none is given.
func (r *Registry) Default() string {
	if len(r.roles) == 0 {
		return ""
	}
	return r.roles[0].Name
}
