package params

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/averros/ecoscen/internal/engine"
)

// The YAML family format lets a deployment describe an engine build's
// parameter surface without recompiling. The built-in DefaultFamilies
// cover the stock engine; a file overrides them entirely when given.
//
//	families:
//	  - name: ecotracer
//	    sub: ecotracer
//	    group_params:
//	      - prefix: init_c
//	        setter: tracer.group.czero
//	    env_params:
//	      - name: env_inflow_forcing
//	        setter: tracer.env.forcing_shape
//	        array: true
//	        index_base: one
//	        pad: prepend
//	        pad_value: 1.0

type familyFile struct {
	Families []familyDoc `yaml:"families"`
}

type familyDoc struct {
	Name          string     `yaml:"name"`
	Sub           string     `yaml:"sub"`
	GroupParams   []specDoc  `yaml:"group_params"`
	EnvParams     []specDoc  `yaml:"env_params"`
	Vulnerability *vulnerDoc `yaml:"vulnerability"`
}

type specDoc struct {
	Prefix    string  `yaml:"prefix"`
	Name      string  `yaml:"name"`
	Setter    string  `yaml:"setter"`
	Array     bool    `yaml:"array"`
	IndexBase string  `yaml:"index_base"`
	Pad       string  `yaml:"pad"`
	PadValue  float64 `yaml:"pad_value"`
}

type vulnerDoc struct {
	Setter string `yaml:"setter"`
}

// LoadFamilies parses parameter family definitions from YAML.
func LoadFamilies(r io.Reader) ([]Family, error) {
	var file familyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("params: parse family file: %w", err)
	}
	if len(file.Families) == 0 {
		return nil, fmt.Errorf("params: family file defines no families")
	}

	fams := make([]Family, 0, len(file.Families))
	for _, doc := range file.Families {
		sub, err := parseSub(doc.Sub)
		if err != nil {
			return nil, fmt.Errorf("params: family %q: %w", doc.Name, err)
		}
		fam := Family{Name: doc.Name, Sub: sub}
		for _, sd := range doc.GroupParams {
			sp, err := sd.toSpec(sub, Group)
			if err != nil {
				return nil, fmt.Errorf("params: family %q: %w", doc.Name, err)
			}
			fam.GroupParams = append(fam.GroupParams, sp)
		}
		for _, sd := range doc.EnvParams {
			sp, err := sd.toSpec(sub, Environmental)
			if err != nil {
				return nil, fmt.Errorf("params: family %q: %w", doc.Name, err)
			}
			fam.EnvParams = append(fam.EnvParams, sp)
		}
		if doc.Vulnerability != nil {
			fam.Vulnerability = &Spec{
				Prefix: vulnPrefix,
				Sub:    sub,
				Target: Vulnerability,
				Setter: engine.ParamID(doc.Vulnerability.Setter),
			}
		}
		fams = append(fams, fam)
	}
	return fams, nil
}

func (sd specDoc) toSpec(sub engine.SubModel, target Target) (Spec, error) {
	name := sd.Prefix
	if target == Environmental {
		name = sd.Name
	}
	if name == "" {
		return Spec{}, fmt.Errorf("parameter entry missing name/prefix")
	}
	if sd.Setter == "" {
		return Spec{}, fmt.Errorf("parameter %q missing setter", name)
	}
	sp := Spec{
		Prefix:      name,
		Sub:         sub,
		Target:      target,
		ArrayValued: sd.Array,
		PadValue:    sd.PadValue,
		Setter:      engine.ParamID(sd.Setter),
	}
	switch sd.IndexBase {
	case "", "zero":
		sp.IndexBase = ZeroBased
	case "one":
		sp.IndexBase = OneBased
	default:
		return Spec{}, fmt.Errorf("parameter %q: unknown index_base %q", name, sd.IndexBase)
	}
	switch sd.Pad {
	case "", "none":
		sp.Pad = PadNone
	case "prepend":
		sp.Pad = PadPrepend
	case "append":
		sp.Pad = PadAppend
	default:
		return Spec{}, fmt.Errorf("parameter %q: unknown pad policy %q", name, sd.Pad)
	}
	return sp, nil
}

func parseSub(s string) (engine.SubModel, error) {
	switch s {
	case "ecopath":
		return engine.Ecopath, nil
	case "ecosim":
		return engine.Ecosim, nil
	case "ecotracer":
		return engine.Ecotracer, nil
	default:
		return 0, fmt.Errorf("unknown sub-model %q", s)
	}
}
