// Package v1 defines the spec and test-case data model: the immutable
// description of a test before it is bound to a workspace, and the mutable
// runtime state once it is.
package v1

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ParamKind identifies the underlying primitive type carried by a Param.
type ParamKind int

const (
	// ParamString holds a string value.
	ParamString ParamKind = iota
	// ParamInt holds an integer value.
	ParamInt
	// ParamFloat holds a floating point value.
	ParamFloat
	// ParamBool holds a boolean value.
	ParamBool
)

// Param is a tagged primitive value. Parameter values are dynamically typed
// in the source generators (string, integer or floating point), so Param
// preserves the originating kind through serialization rather than
// collapsing everything to strings.
type Param struct {
	Kind ParamKind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
}

// NewStringParam builds a string-kinded Param.
func NewStringParam(s string) Param { return Param{Kind: ParamString, Str: s} }

// NewIntParam builds an integer-kinded Param.
func NewIntParam(i int64) Param { return Param{Kind: ParamInt, Int: i} }

// NewFloatParam builds a float-kinded Param.
func NewFloatParam(f float64) Param { return Param{Kind: ParamFloat, Flt: f} }

// NewBoolParam builds a boolean-kinded Param.
func NewBoolParam(b bool) Param { return Param{Kind: ParamBool, Bool: b} }

// String renders the value using its native textual form. It is used both
// for display (case-name suffixes) and as a fallback for comparisons against
// a filter literal that itself arrived as a string.
func (p Param) String() string {
	switch p.Kind {
	case ParamString:
		return p.Str
	case ParamInt:
		return strconv.FormatInt(p.Int, 10)
	case ParamFloat:
		return strconv.FormatFloat(p.Flt, 'g', -1, 64)
	case ParamBool:
		return strconv.FormatBool(p.Bool)
	default:
		return ""
	}
}

// Float64 coerces the value to a float64 for use by ordering comparisons in
// the filter predicate language. Strings that do not parse as numbers return
// false.
func (p Param) Float64() (float64, bool) {
	switch p.Kind {
	case ParamInt:
		return float64(p.Int), true
	case ParamFloat:
		return p.Flt, true
	case ParamString:
		f, err := strconv.ParseFloat(p.Str, 64)
		return f, err == nil
	case ParamBool:
		if p.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Equal reports whether two params hold the same logical value, coercing
// across kinds (e.g. the int 3 equals the string "3").
func (p Param) Equal(o Param) bool {
	if p.Kind == o.Kind {
		switch p.Kind {
		case ParamString:
			return p.Str == o.Str
		case ParamInt:
			return p.Int == o.Int
		case ParamFloat:
			return p.Flt == o.Flt
		case ParamBool:
			return p.Bool == o.Bool
		}
	}
	pf, pok := p.Float64()
	of, ook := o.Float64()
	if pok && ook {
		return pf == of
	}
	return p.String() == o.String()
}

// Native returns the value as a plain Go interface{} (string, int64, float64
// or bool), for consumers — such as the filter predicate language — that
// operate on dynamically typed environments rather than the Param wrapper.
func (p Param) Native() interface{} {
	switch p.Kind {
	case ParamString:
		return p.Str
	case ParamInt:
		return p.Int
	case ParamFloat:
		return p.Flt
	case ParamBool:
		return p.Bool
	default:
		return nil
	}
}

type paramJSON struct {
	Kind string  `json:"kind"`
	Str  string  `json:"str,omitempty"`
	Int  int64   `json:"int,omitempty"`
	Flt  float64 `json:"flt,omitempty"`
	Bool bool    `json:"bool,omitempty"`
}

// MarshalJSON implements json.Marshaler, tagging the value with its kind so
// a round-trip through the session cache preserves the originating type.
func (p Param) MarshalJSON() ([]byte, error) {
	pj := paramJSON{Str: p.Str, Int: p.Int, Flt: p.Flt, Bool: p.Bool}
	switch p.Kind {
	case ParamString:
		pj.Kind = "string"
	case ParamInt:
		pj.Kind = "int"
	case ParamFloat:
		pj.Kind = "float"
	case ParamBool:
		pj.Kind = "bool"
	default:
		return nil, fmt.Errorf("unknown param kind %d", p.Kind)
	}
	return json.Marshal(pj)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Param) UnmarshalJSON(data []byte) error {
	var pj paramJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	switch pj.Kind {
	case "string":
		p.Kind = ParamString
	case "int":
		p.Kind = ParamInt
	case "float":
		p.Kind = ParamFloat
	case "bool":
		p.Kind = ParamBool
	default:
		return fmt.Errorf("unknown param kind %q", pj.Kind)
	}
	p.Str, p.Int, p.Flt, p.Bool = pj.Str, pj.Int, pj.Flt, pj.Bool
	return nil
}

// Params is a parameter map keyed by name.
type Params map[string]Param

// SortedKeys returns the parameter names in ascending order, used anywhere a
// deterministic traversal is required (case-name construction, content
// hashing).
func (p Params) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResourceRequest maps a resource type name (e.g. "cpus", "gpus") to the
// count of instances requested. Types beyond the defaults "cpus"/"gpus" are
// permitted; the pool does not distinguish built-in from custom types.
type ResourceRequest map[string]int

// Total sums the requested counts across all types.
func (r ResourceRequest) Total() int {
	total := 0
	for _, n := range r {
		total += n
	}
	return total
}
