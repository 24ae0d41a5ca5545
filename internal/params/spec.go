// Package params maps semantic parameter names onto typed, indexed engine
// mutations. The simulation core mixes one-based, zero-based, and padded
// array conventions; every correction is declared per parameter as
// metadata on its Spec rather than patched at call sites, so the rules are
// auditable and testable without an engine.
package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/averros/ecoscen/internal/engine"
)

// Target says which axis a parameter addresses.
type Target int

const (
	// Environmental parameters are model-wide scalars or vectors with a
	// flat name.
	Environmental Target = iota
	// Group parameters exist once per functional group and are named
	// <prefix>_<index>_<groupName>.
	Group
	// Vulnerability parameters address a (prey, predator) cell and are
	// named vuln_<preyIdx>_<prey>_<predIdx>_<pred>.
	Vulnerability
)

// IndexBase declares how an array-valued parameter's external
// representation lines up with the engine's internal array.
type IndexBase int

const (
	ZeroBased IndexBase = iota
	OneBased
)

// PadPolicy declares where the engine keeps its unused slot in an
// array-valued parameter.
type PadPolicy int

const (
	PadNone PadPolicy = iota
	PadPrepend
	PadAppend
)

// Spec is the static description of one parameter family member. Specs
// are registered once at startup and immutable thereafter; the registry
// is safely shared across workers without synchronization.
type Spec struct {
	// Prefix is the group-parameter prefix, or the full flat name for
	// environmental parameters.
	Prefix      string
	Sub         engine.SubModel
	Target      Target
	ArrayValued bool
	IndexBase   IndexBase
	Pad         PadPolicy
	PadValue    float64
	Setter      engine.ParamID
}

// Family bundles the specs of one sub-model's parameter surface.
type Family struct {
	Name          string
	Sub           engine.SubModel
	GroupParams   []Spec
	EnvParams     []Spec
	Vulnerability *Spec
}

// vulnPrefix is the reserved prefix for vulnerability parameter names.
const vulnPrefix = "vuln"

// EcotracerFamily describes the contaminant-tracer parameter surface.
func EcotracerFamily() Family {
	group := func(prefix string, setter engine.ParamID) Spec {
		return Spec{Prefix: prefix, Sub: engine.Ecotracer, Target: Group, Setter: setter}
	}
	env := func(name string, setter engine.ParamID) Spec {
		return Spec{Prefix: name, Sub: engine.Ecotracer, Target: Environmental, Setter: setter}
	}
	return Family{
		Name: "ecotracer",
		Sub:  engine.Ecotracer,
		GroupParams: []Spec{
			group("init_c", "tracer.group.czero"),
			group("immig_c", "tracer.group.cimmig"),
			group("direct_abs_r", "tracer.group.cenvironment"),
			group("phys_decay_r", "tracer.group.cdecay"),
			group("meta_decay_r", "tracer.group.cmetabolism"),
			group("excretion_r", "tracer.group.cassimilation"),
		},
		EnvParams: []Spec{
			env("env_init_c", "tracer.env.czero"),
			env("env_base_inflow_r", "tracer.env.cinflow"),
			env("env_decay_r", "tracer.env.cdecay"),
			env("base_vol_ex_loss", "tracer.env.coutflow"),
			env("env_inflow_forcing_idx", "tracer.env.forcing_number"),
			// The inflow forcing vector itself. The engine stores shapes
			// one-based with an unused leading slot that the GUI fills
			// with 1.0; correction prepends that placeholder.
			{
				Prefix:      "env_inflow_forcing",
				Sub:         engine.Ecotracer,
				Target:      Environmental,
				ArrayValued: true,
				IndexBase:   OneBased,
				Pad:         PadPrepend,
				PadValue:    1.0,
				Setter:      "tracer.env.forcing_shape",
			},
		},
	}
}

// EcosimFamily describes the time-dynamic parameter surface, including
// the prey/predator vulnerability matrix.
func EcosimFamily() Family {
	group := func(prefix string, setter engine.ParamID) Spec {
		return Spec{Prefix: prefix, Sub: engine.Ecosim, Target: Group, Setter: setter}
	}
	vuln := Spec{Prefix: vulnPrefix, Sub: engine.Ecosim, Target: Vulnerability, Setter: "sim.vulnerability"}
	return Family{
		Name: "ecosim",
		Sub:  engine.Ecosim,
		GroupParams: []Spec{
			group("density_dep_catchability", "sim.group.dendep_catchability"),
			group("feeding_time_adj_rate", "sim.group.feeding_time_adjust"),
			group("max_rel_feeding_time", "sim.group.max_rel_feeding_time"),
			group("max_rel_pb", "sim.group.max_rel_pb"),
			group("pred_effect_feeding_time", "sim.group.pred_effect_feeding_time"),
			group("other_mort_feeding_time", "sim.group.other_mort_feeding_time"),
			group("qbmax_qbio", "sim.group.qbmax_qbio"),
			group("switching_power", "sim.group.switching_power"),
		},
		Vulnerability: &vuln,
	}
}

// DefaultFamilies returns the full built-in parameter surface.
func DefaultFamilies() []Family {
	return []Family{EcosimFamily(), EcotracerFamily()}
}

// Registry is the process-wide parameter specification registry: group
// names from a loaded model plus the registered families. Initialized
// once, read-only thereafter.
type Registry struct {
	groups   []string
	width    int
	byPrefix map[string]Spec
	prefixes []string
	byEnv    map[string]Spec
	envNames []string
	vuln     *Spec
}

// NewRegistry builds a registry for a model's functional groups.
func NewRegistry(groups []string, families ...Family) (*Registry, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("params: registry needs at least one functional group")
	}
	r := &Registry{
		groups:   append([]string(nil), groups...),
		width:    len(strconv.Itoa(len(groups))),
		byPrefix: make(map[string]Spec),
		byEnv:    make(map[string]Spec),
	}
	for _, fam := range families {
		for _, sp := range fam.GroupParams {
			if _, dup := r.byPrefix[sp.Prefix]; dup {
				return nil, fmt.Errorf("params: duplicate group prefix %q", sp.Prefix)
			}
			r.byPrefix[sp.Prefix] = sp
			r.prefixes = append(r.prefixes, sp.Prefix)
		}
		for _, sp := range fam.EnvParams {
			if _, dup := r.byEnv[sp.Prefix]; dup {
				return nil, fmt.Errorf("params: duplicate environmental parameter %q", sp.Prefix)
			}
			r.byEnv[sp.Prefix] = sp
			r.envNames = append(r.envNames, sp.Prefix)
		}
		if fam.Vulnerability != nil {
			if r.vuln != nil {
				return nil, fmt.Errorf("params: duplicate vulnerability family")
			}
			v := *fam.Vulnerability
			r.vuln = &v
		}
	}
	sort.Strings(r.prefixes)
	sort.Strings(r.envNames)
	return r, nil
}

// Groups returns the functional group names in engine order.
func (r *Registry) Groups() []string {
	return append([]string(nil), r.groups...)
}

// GroupPrefixes returns the registered group-parameter prefixes, sorted.
func (r *Registry) GroupPrefixes() []string {
	return append([]string(nil), r.prefixes...)
}

// EnvParamNames returns the registered environmental parameter names,
// sorted.
func (r *Registry) EnvParamNames() []string {
	return append([]string(nil), r.envNames...)
}

// GroupParamName formats the canonical name for one (prefix, group)
// combination. The index is one-based and zero-padded to the width of the
// group count so that alphabetical ordering follows engine ordering.
func (r *Registry) GroupParamName(prefix string, group int) (string, error) {
	if _, ok := r.byPrefix[prefix]; !ok {
		return "", unknownParam(prefix, "not a registered group-parameter prefix")
	}
	if group < 1 || group > len(r.groups) {
		return "", unknownParam(prefix, fmt.Sprintf("group index %d out of range [1,%d]", group, len(r.groups)))
	}
	return fmt.Sprintf("%s_%0*d_%s", prefix, r.width, group, r.groups[group-1]), nil
}

// GroupParamNames expands prefixes over all functional groups. An empty
// prefix list (or the single entry "all") expands every registered prefix.
func (r *Registry) GroupParamNames(prefixes ...string) ([]string, error) {
	if len(prefixes) == 0 || (len(prefixes) == 1 && prefixes[0] == "all") {
		prefixes = r.prefixes
	}
	var names []string
	for _, prefix := range prefixes {
		if _, ok := r.byPrefix[prefix]; !ok {
			return nil, unknownParam(prefix, "not a registered group-parameter prefix")
		}
		for g := 1; g <= len(r.groups); g++ {
			name, err := r.GroupParamName(prefix, g)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// AllNames returns every resolvable parameter name known to the registry,
// vulnerability cells excluded (there are nGroups² of them; enumerate
// those with VulnParamName as needed).
func (r *Registry) AllNames() []string {
	names, _ := r.GroupParamNames()
	names = append(names, r.EnvParamNames()...)
	sort.Strings(names)
	return names
}

// VulnParamName formats the canonical vulnerability parameter name for a
// one-based (prey, predator) pair.
func (r *Registry) VulnParamName(prey, pred int) (string, error) {
	if r.vuln == nil {
		return "", unknownParam(vulnPrefix, "no vulnerability family registered")
	}
	if prey < 1 || prey > len(r.groups) || pred < 1 || pred > len(r.groups) {
		return "", unknownParam(vulnPrefix, fmt.Sprintf("pair (%d,%d) out of range [1,%d]", prey, pred, len(r.groups)))
	}
	return fmt.Sprintf("%s_%0*d_%s_%0*d_%s",
		vulnPrefix, r.width, prey, r.groups[prey-1], r.width, pred, r.groups[pred-1]), nil
}

// groupIndexAt parses a zero-padded one-based group index at the front of
// s and returns it with the remainder after the index token.
func (r *Registry) groupIndexAt(s string) (int, string, bool) {
	if len(s) < r.width {
		return 0, "", false
	}
	tok := s[:r.width]
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 1 || idx > len(r.groups) {
		return 0, "", false
	}
	rest := s[r.width:]
	rest = strings.TrimPrefix(rest, "_")
	return idx, rest, true
}
