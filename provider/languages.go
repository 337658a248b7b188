package provider

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// BCP47System is the canonical url of the IETF language tag code system.
const BCP47System = "urn:ietf:bcp:47"

// langConcept is a validated language tag.
type langConcept struct {
	code string
	tag  language.Tag
}

func (c *langConcept) Code() string { return c.code }

// Languages serves IETF BCP-47 language tags. There is no stored concept
// list: locating a code parses the tag against the subtag registry, and
// is-a expresses tag prefix containment.
type Languages struct{}

// NewLanguages creates the BCP-47 provider.
func NewLanguages() *Languages { return &Languages{} }

// System returns the BCP-47 canonical url.
func (p *Languages) System() string { return BCP47System }

// Version returns "": the subtag registry is unversioned here.
func (p *Languages) Version() string { return "" }

// PartialVersion returns "".
func (p *Languages) PartialVersion() string { return "" }

// TotalCount returns -1: the tag grammar is not enumerable.
func (p *Languages) TotalCount() int { return -1 }

// Locate validates a tag by parsing it against the subtag registry.
func (p *Languages) Locate(code string) (Concept, string) {
	tag, err := language.Parse(code)
	if err != nil {
		return nil, ""
	}
	msg := ""
	if _, conf := tag.Base(); conf == language.No {
		msg = fmt.Sprintf("language tag '%s' is well-formed but its primary subtag is unregistered", code)
	}
	return &langConcept{code: code, tag: tag}, msg
}

// Display renders the tag's name, in the first requested language the
// namer covers, falling back to English.
func (p *Languages) Display(c Concept, languages []string) string {
	lc := c.(*langConcept)
	for _, want := range languages {
		wantTag, err := language.Parse(want)
		if err != nil {
			continue
		}
		if namer := display.Tags(wantTag); namer != nil {
			if name := namer.Name(lc.tag); name != "" {
				return name
			}
		}
	}
	return display.English.Tags().Name(lc.tag)
}

// Designations returns the English name as the sole designation.
func (p *Languages) Designations(c Concept) []model.Designation {
	return []model.Designation{{Language: "en", Value: p.Display(c, nil)}}
}

// Definition returns "".
func (p *Languages) Definition(c Concept) string { return "" }

// Properties decomposes the tag into its subtags.
func (p *Languages) Properties(c Concept, propFilter []string) []model.Property {
	lc := c.(*langConcept)
	var props []model.Property
	if b, conf := lc.tag.Base(); conf != language.No {
		props = append(props, model.Property{Code: "language", ValueCode: b.String()})
	}
	if s, conf := lc.tag.Script(); conf != language.No {
		props = append(props, model.Property{Code: "script", ValueCode: s.String()})
	}
	if r, conf := lc.tag.Region(); conf != language.No {
		props = append(props, model.Property{Code: "region", ValueCode: r.String()})
	}
	if len(propFilter) == 0 {
		return props
	}
	var out []model.Property
	for _, prop := range props {
		for _, want := range propFilter {
			if prop.Code == want {
				out = append(out, prop)
				break
			}
		}
	}
	return out
}

// IsInactive reports false.
func (p *Languages) IsInactive(c Concept) bool { return false }

// IsAbstract reports false.
func (p *Languages) IsAbstract(c Concept) bool { return false }

// IsDeprecated reports false.
func (p *Languages) IsDeprecated(c Concept) bool { return false }

// Subsumes expresses tag prefix containment: "en" subsumes "en-US".
func (p *Languages) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	ca, cb := canonicalTag(a.Code()), canonicalTag(b.Code())
	switch {
	case ca == cb:
		return Equivalent, nil
	case strings.HasPrefix(cb, ca+"-"):
		return Subsumes, nil
	case strings.HasPrefix(ca, cb+"-"):
		return SubsumedBy, nil
	default:
		return NotSubsumed, nil
	}
}

func canonicalTag(code string) string {
	return strings.ToLower(code)
}

// Filter supports is-a prefix containment; the result is provisional
// because tags under a prefix are not enumerable.
func (p *Languages) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	if iss := opCtx.DeadCheck("filter:bcp47"); iss != nil {
		return nil, iss
	}
	if op != "is-a" && op != "=" {
		return nil, txserver.NotSupported(fmt.Sprintf(
			"filter operator '%s' is not supported for language tags", op))
	}
	concept, _ := p.Locate(value)
	if concept == nil {
		return NewProvisionalFilter(nil), nil
	}
	return NewProvisionalFilter([]Concept{concept}), nil
}

// Iterator iterates a filter's provisional matches.
func (p *Languages) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	if filter == nil {
		return nil, txserver.NotSupported("language tags cannot be enumerated")
	}
	concepts, ok := ListFilterConcepts(filter)
	if !ok {
		return nil, txserver.NotSupported("foreign filter context")
	}
	return NewSliceIterator(concepts), nil
}

// FiltersNotClosed reports true.
func (p *Languages) FiltersNotClosed() bool { return true }

// Close is a no-op.
func (p *Languages) Close() {}

var _ CodeSystemProvider = (*Languages)(nil)
