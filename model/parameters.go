package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Parameter is one named entry of a Parameters resource. At most one value
// field is set; Part carries nested parts for multi-part parameters.
type Parameter struct {
	Name string `json:"name"`

	ValueCode     string           `json:"valueCode,omitempty"`
	ValueString   string           `json:"valueString,omitempty"`
	ValueURI      string           `json:"valueUri,omitempty"`
	ValueBoolean  *bool            `json:"valueBoolean,omitempty"`
	ValueInteger  *int             `json:"valueInteger,omitempty"`
	ValueDecimal  string           `json:"valueDecimal,omitempty"`
	ValueDateTime string           `json:"valueDateTime,omitempty"`
	ValueCoding   *Coding          `json:"valueCoding,omitempty"`
	ValueConcept  *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	Resource      json.RawMessage  `json:"resource,omitempty"`

	Part []Parameter `json:"part,omitempty"`
}

// Parameters is the flat, named, repeatable multi-typed value container
// used for both operation input and output.
type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter,omitempty"`
}

// NewParameters creates an empty Parameters resource.
func NewParameters() *Parameters {
	return &Parameters{ResourceType: "Parameters"}
}

// Add appends a parameter and returns the receiver for chaining.
func (p *Parameters) Add(param Parameter) *Parameters {
	p.Parameter = append(p.Parameter, param)
	return p
}

// AddCode appends a valueCode parameter.
func (p *Parameters) AddCode(name, value string) *Parameters {
	return p.Add(Parameter{Name: name, ValueCode: value})
}

// AddString appends a valueString parameter.
func (p *Parameters) AddString(name, value string) *Parameters {
	return p.Add(Parameter{Name: name, ValueString: value})
}

// AddURI appends a valueUri parameter.
func (p *Parameters) AddURI(name, value string) *Parameters {
	return p.Add(Parameter{Name: name, ValueURI: value})
}

// AddBoolean appends a valueBoolean parameter.
func (p *Parameters) AddBoolean(name string, value bool) *Parameters {
	v := value
	return p.Add(Parameter{Name: name, ValueBoolean: &v})
}

// AddInteger appends a valueInteger parameter.
func (p *Parameters) AddInteger(name string, value int) *Parameters {
	v := value
	return p.Add(Parameter{Name: name, ValueInteger: &v})
}

// AddCoding appends a valueCoding parameter.
func (p *Parameters) AddCoding(name string, value Coding) *Parameters {
	return p.Add(Parameter{Name: name, ValueCoding: &value})
}

// First returns the first parameter with the given name.
func (p *Parameters) First(name string) (*Parameter, bool) {
	for i := range p.Parameter {
		if p.Parameter[i].Name == name {
			return &p.Parameter[i], true
		}
	}
	return nil, false
}

// All returns every parameter with the given name, preserving order.
func (p *Parameters) All(name string) []*Parameter {
	var out []*Parameter
	for i := range p.Parameter {
		if p.Parameter[i].Name == name {
			out = append(out, &p.Parameter[i])
		}
	}
	return out
}

// String returns the first value for name coerced to a string, across the
// primitive value fields.
func (p *Parameters) String(name string) (string, bool) {
	param, ok := p.First(name)
	if !ok {
		return "", false
	}
	return param.AsString()
}

// Bool returns the first value for name interpreted as a boolean. String
// forms "true"/"false" from query parameters are accepted.
func (p *Parameters) Bool(name string) (bool, bool) {
	param, ok := p.First(name)
	if !ok {
		return false, false
	}
	if param.ValueBoolean != nil {
		return *param.ValueBoolean, true
	}
	s, ok := param.AsString()
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}

// Int returns the first value for name interpreted as an integer.
func (p *Parameters) Int(name string) (int, bool) {
	param, ok := p.First(name)
	if !ok {
		return 0, false
	}
	if param.ValueInteger != nil {
		return *param.ValueInteger, true
	}
	s, ok := param.AsString()
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Coding returns the first valueCoding for name.
func (p *Parameters) Coding(name string) (*Coding, bool) {
	param, ok := p.First(name)
	if !ok || param.ValueCoding == nil {
		return nil, false
	}
	return param.ValueCoding, true
}

// Concept returns the first valueCodeableConcept for name.
func (p *Parameters) Concept(name string) (*CodeableConcept, bool) {
	param, ok := p.First(name)
	if !ok || param.ValueConcept == nil {
		return nil, false
	}
	return param.ValueConcept, true
}

// AsString coerces the parameter's primitive value to a string.
func (pa *Parameter) AsString() (string, bool) {
	switch {
	case pa.ValueCode != "":
		return pa.ValueCode, true
	case pa.ValueString != "":
		return pa.ValueString, true
	case pa.ValueURI != "":
		return pa.ValueURI, true
	case pa.ValueDecimal != "":
		return pa.ValueDecimal, true
	case pa.ValueDateTime != "":
		return pa.ValueDateTime, true
	case pa.ValueBoolean != nil:
		return strconv.FormatBool(*pa.ValueBoolean), true
	case pa.ValueInteger != nil:
		return strconv.Itoa(*pa.ValueInteger), true
	default:
		return "", false
	}
}

// PartNamed returns the first nested part with the given name.
func (pa *Parameter) PartNamed(name string) (*Parameter, bool) {
	for i := range pa.Part {
		if pa.Part[i].Name == name {
			return &pa.Part[i], true
		}
	}
	return nil, false
}

// ParseParameters decodes a Parameters resource from JSON, rejecting other
// resource types.
func ParseParameters(data []byte) (*Parameters, error) {
	var p Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid Parameters resource: %w", err)
	}
	if p.ResourceType != "Parameters" {
		return nil, fmt.Errorf("expected Parameters, got %q", p.ResourceType)
	}
	return &p, nil
}
