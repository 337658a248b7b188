package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/lang"
	"github.com/gofhir/txserver/model"
)

// enumNode is one concept of an enumerated code system, with explicit
// child-of edges and derived parent-of edges.
type enumNode struct {
	concept *model.Concept
	parents []*enumNode
	children []*enumNode
	order   int
}

func (n *enumNode) Code() string { return n.concept.Code }

// Enumerated serves a FHIR CodeSystem resource with an inline concept
// tree: a depth-first index over concept[], case-folded when the system is
// case-insensitive, with supplement designations and properties merged in.
type Enumerated struct {
	cs          *model.CodeSystem
	byCode      map[string]*enumNode
	ordered     []*enumNode
	suppDesig   map[string][]model.Designation
	suppProps   map[string][]model.Property
}

// NewEnumerated indexes a CodeSystem resource and applies its supplements.
// A supplement that introduces a code unknown to the target violates the
// supplement contract and is rejected.
func NewEnumerated(cs *model.CodeSystem, supplements []*model.CodeSystem) (*Enumerated, *txserver.Issue) {
	p := &Enumerated{
		cs:        cs,
		byCode:    make(map[string]*enumNode),
		suppDesig: make(map[string][]model.Designation),
		suppProps: make(map[string][]model.Property),
	}
	p.indexConcepts(cs.Concept, nil)

	// parent-of is derived from child-of, plus any subsumedBy properties
	// carried on the concepts.
	for _, n := range p.ordered {
		for _, prop := range n.concept.Property {
			if prop.Code != "subsumedBy" && prop.Code != "parent" {
				continue
			}
			parent, ok := p.byCode[p.fold(prop.ValueCode)]
			if !ok {
				continue
			}
			n.parents = append(n.parents, parent)
			parent.children = append(parent.children, n)
		}
	}

	for _, supp := range supplements {
		if iss := p.applySupplement(supp); iss != nil {
			return nil, iss
		}
	}
	return p, nil
}

func (p *Enumerated) indexConcepts(concepts []model.Concept, parent *enumNode) {
	for i := range concepts {
		c := &concepts[i]
		node := &enumNode{concept: c, order: len(p.ordered)}
		if parent != nil {
			node.parents = append(node.parents, parent)
			parent.children = append(parent.children, node)
		}
		p.ordered = append(p.ordered, node)
		p.byCode[p.fold(c.Code)] = node
		p.indexConcepts(c.Concept, node)
	}
}

func (p *Enumerated) applySupplement(supp *model.CodeSystem) *txserver.Issue {
	var walk func(concepts []model.Concept) *txserver.Issue
	walk = func(concepts []model.Concept) *txserver.Issue {
		for i := range concepts {
			c := &concepts[i]
			node, ok := p.byCode[p.fold(c.Code)]
			if !ok {
				return txserver.BusinessRule(fmt.Sprintf(
					"supplement %s introduces code '%s' unknown to %s", supp.URL, c.Code, p.cs.URL))
			}
			code := node.concept.Code
			p.suppDesig[code] = append(p.suppDesig[code], c.Designation...)
			if c.Display != "" && supp.Language != "" {
				p.suppDesig[code] = append(p.suppDesig[code], model.Designation{
					Language: supp.Language,
					Value:    c.Display,
				})
			}
			p.suppProps[code] = append(p.suppProps[code], c.Property...)
			if iss := walk(c.Concept); iss != nil {
				return iss
			}
		}
		return nil
	}
	return walk(supp.Concept)
}

func (p *Enumerated) fold(code string) string {
	if p.cs.CaseSensitive {
		return code
	}
	return strings.ToLower(code)
}

// System returns the canonical url.
func (p *Enumerated) System() string { return p.cs.URL }

// Version returns the served version.
func (p *Enumerated) Version() string { return p.cs.Version }

// PartialVersion returns the major.minor reduction of the version.
func (p *Enumerated) PartialVersion() string { return model.MajorMinor(p.cs.Version) }

// TotalCount returns the concept cardinality.
func (p *Enumerated) TotalCount() int { return len(p.ordered) }

// Locate finds a concept, folding case when the system is
// case-insensitive. The message reports inactive and deprecated codes.
func (p *Enumerated) Locate(code string) (Concept, string) {
	node, ok := p.byCode[p.fold(code)]
	if !ok {
		return nil, ""
	}
	if p.cs.CaseSensitive && node.concept.Code != code {
		return nil, ""
	}
	switch {
	case p.IsInactive(node):
		return node, fmt.Sprintf("code '%s' is inactive", node.concept.Code)
	case p.IsDeprecated(node):
		return node, fmt.Sprintf("code '%s' is deprecated", node.concept.Code)
	}
	return node, ""
}

// Display returns the best-match display for the language priority list,
// consulting designations (supplements included) before the system default.
func (p *Enumerated) Display(c Concept, languages []string) string {
	node := c.(*enumNode)
	if len(languages) > 0 {
		designations := p.Designations(c)
		langs := make([]string, len(designations))
		for i, d := range designations {
			langs[i] = d.Language
		}
		if idx := lang.Select(langs, languages); idx >= 0 {
			return designations[idx].Value
		}
	}
	return node.concept.Display
}

// Designations returns the concept's designations with supplement
// designations appended.
func (p *Enumerated) Designations(c Concept) []model.Designation {
	node := c.(*enumNode)
	out := append([]model.Designation(nil), node.concept.Designation...)
	return append(out, p.suppDesig[node.concept.Code]...)
}

// Definition returns the concept's definition.
func (p *Enumerated) Definition(c Concept) string {
	return c.(*enumNode).concept.Definition
}

// Properties returns the concept's properties with supplement properties
// appended, restricted to propFilter when non-empty.
func (p *Enumerated) Properties(c Concept, propFilter []string) []model.Property {
	node := c.(*enumNode)
	all := append([]model.Property(nil), node.concept.Property...)
	all = append(all, p.suppProps[node.concept.Code]...)
	if len(propFilter) == 0 {
		return all
	}
	var out []model.Property
	for _, prop := range all {
		for _, want := range propFilter {
			if prop.Code == want {
				out = append(out, prop)
				break
			}
		}
	}
	return out
}

func (p *Enumerated) boolProperty(c Concept, name string) bool {
	for _, prop := range c.(*enumNode).concept.Property {
		if prop.Code == name && prop.ValueBoolean != nil {
			return *prop.ValueBoolean
		}
	}
	return false
}

func (p *Enumerated) statusProperty(c Concept) string {
	for _, prop := range c.(*enumNode).concept.Property {
		if prop.Code == "status" {
			if prop.ValueCode != "" {
				return prop.ValueCode
			}
			return prop.ValueString
		}
	}
	return ""
}

// IsInactive reports whether the concept is marked inactive or retired.
func (p *Enumerated) IsInactive(c Concept) bool {
	if p.boolProperty(c, "inactive") {
		return true
	}
	status := p.statusProperty(c)
	return status == "retired" || status == "inactive"
}

// IsAbstract reports whether the concept is not selectable.
func (p *Enumerated) IsAbstract(c Concept) bool {
	return p.boolProperty(c, "notSelectable") || p.boolProperty(c, "abstract")
}

// IsDeprecated reports whether the concept is deprecated.
func (p *Enumerated) IsDeprecated(c Concept) bool {
	return p.statusProperty(c) == "deprecated" || p.boolProperty(c, "deprecated")
}

// Subsumes tests the hierarchical relation between a and b. A cycle in the
// ancestor relation is an invariant violation and is reported.
func (p *Enumerated) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	na, nb := a.(*enumNode), b.(*enumNode)
	if na == nb {
		return Equivalent, nil
	}
	down, iss := p.reaches(na, nb)
	if iss != nil {
		return NotSubsumed, iss
	}
	if down {
		return Subsumes, nil
	}
	up, iss := p.reaches(nb, na)
	if iss != nil {
		return NotSubsumed, iss
	}
	if up {
		return SubsumedBy, nil
	}
	return NotSubsumed, nil
}

// reaches reports whether target is in the transitive descendants of from.
func (p *Enumerated) reaches(from, target *enumNode) (bool, *txserver.Issue) {
	visited := make(map[*enumNode]bool)
	stack := append([]*enumNode(nil), from.children...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == from {
			return false, txserver.BusinessRule(fmt.Sprintf(
				"hierarchy cycle involving code '%s' in %s", from.concept.Code, p.cs.URL))
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == target {
			return true, nil
		}
		stack = append(stack, n.children...)
	}
	return false, nil
}

// descendants collects the transitive descendants of node, optionally
// including node itself, in index order.
func (p *Enumerated) descendants(node *enumNode, includeSelf bool) []Concept {
	visited := make(map[*enumNode]bool)
	var out []*enumNode
	var collect func(n *enumNode)
	collect = func(n *enumNode) {
		if visited[n] {
			return
		}
		visited[n] = true
		out = append(out, n)
		for _, child := range n.children {
			collect(child)
		}
	}
	collect(node)
	concepts := make([]Concept, 0, len(out))
	for _, n := range out {
		if !includeSelf && n == node {
			continue
		}
		concepts = append(concepts, n)
	}
	return concepts
}

// ancestors collects the transitive ancestors of node including itself.
func (p *Enumerated) ancestors(node *enumNode) []Concept {
	visited := make(map[*enumNode]bool)
	var out []Concept
	var collect func(n *enumNode)
	collect = func(n *enumNode) {
		if visited[n] {
			return
		}
		visited[n] = true
		out = append(out, n)
		for _, parent := range n.parents {
			collect(parent)
		}
	}
	collect(node)
	return out
}

// Filter precomputes a concept list for the property/op/value triple.
// Hierarchy operators bind to the "concept" property; "code" and declared
// properties support the value operators.
func (p *Enumerated) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	if iss := opCtx.DeadCheck("filter:" + p.cs.URL); iss != nil {
		return nil, iss
	}

	switch op {
	case "is-a", "descendent-of", "is-not-a", "generalizes":
		if property != "concept" && property != "code" {
			return nil, txserver.NotSupported(fmt.Sprintf(
				"operator %s applies to the concept property, not '%s'", op, property))
		}
		root, ok := p.byCode[p.fold(value)]
		if !ok {
			return NewListFilter(nil), nil
		}
		switch op {
		case "is-a":
			return NewListFilter(p.descendants(root, true)), nil
		case "descendent-of":
			return NewListFilter(p.descendants(root, false)), nil
		case "generalizes":
			return NewListFilter(p.ancestors(root)), nil
		default: // is-not-a
			excluded := make(map[Concept]bool)
			for _, c := range p.descendants(root, true) {
				excluded[c] = true
			}
			var kept []Concept
			for _, n := range p.ordered {
				if !excluded[n] {
					kept = append(kept, n)
				}
			}
			return NewListFilter(kept), nil
		}

	case "=", "regex", "in", "not-in", "exists":
		return p.valueFilter(property, op, value)

	default:
		return nil, txserver.NotSupported(fmt.Sprintf(
			"filter operator '%s' is not supported by %s", op, p.cs.URL))
	}
}

func (p *Enumerated) valueFilter(property, op, value string) (FilterContext, *txserver.Issue) {
	var re *regexp.Regexp
	if op == "regex" {
		compiled, err := regexp.Compile(value)
		if err != nil {
			return nil, txserver.BadRequest(fmt.Sprintf("invalid regex filter value %q: %v", value, err))
		}
		re = compiled
	}
	var inSet map[string]bool
	if op == "in" || op == "not-in" {
		inSet = make(map[string]bool)
		for _, v := range strings.Split(value, ",") {
			inSet[v] = true
		}
	}
	wantExists := value != "false"

	propertyValue := func(n *enumNode) (string, bool) {
		if property == "code" {
			return n.concept.Code, true
		}
		for _, prop := range n.concept.Property {
			if prop.Code == property {
				if v := prop.Value(); v != nil {
					return fmt.Sprint(v), true
				}
			}
		}
		return "", false
	}

	var kept []Concept
	for _, n := range p.ordered {
		v, present := propertyValue(n)
		match := false
		switch op {
		case "=":
			match = present && v == value
		case "regex":
			match = present && re.MatchString(v)
		case "in":
			match = present && inSet[v]
		case "not-in":
			match = !present || !inSet[v]
		case "exists":
			match = present == wantExists
		}
		if match {
			kept = append(kept, n)
		}
	}
	return NewListFilter(kept), nil
}

// Iterator returns a cursor over the filtered concepts, or all concepts in
// depth-first order when filter is nil.
func (p *Enumerated) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	if iss := opCtx.DeadCheck("iterate:" + p.cs.URL); iss != nil {
		return nil, iss
	}
	if filter == nil {
		all := make([]Concept, len(p.ordered))
		for i, n := range p.ordered {
			all[i] = n
		}
		return NewSliceIterator(all), nil
	}
	concepts, ok := ListFilterConcepts(filter)
	if !ok {
		return nil, txserver.NotSupported("foreign filter context")
	}
	return NewSliceIterator(concepts), nil
}

// FiltersNotClosed reports false: enumerated filter sets are complete.
func (p *Enumerated) FiltersNotClosed() bool { return false }

// Close is a no-op; the index is owned by the library.
func (p *Enumerated) Close() {}

// ParentCodes returns the direct parents of a concept.
func (p *Enumerated) ParentCodes(c Concept) []string {
	node := c.(*enumNode)
	out := make([]string, 0, len(node.parents))
	for _, parent := range node.parents {
		out = append(out, parent.concept.Code)
	}
	return out
}

// Resource returns the underlying CodeSystem resource.
func (p *Enumerated) Resource() *model.CodeSystem { return p.cs }

var _ CodeSystemProvider = (*Enumerated)(nil)
