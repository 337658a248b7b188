package provider

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// SNOMEDSystem is the canonical url of SNOMED CT.
const SNOMEDSystem = "http://snomed.info/sct"

// snomedConcept is one concept of a loaded SNOMED snapshot.
type snomedConcept struct {
	id       string
	term     string
	active   bool
	parents  []*snomedConcept
	children []*snomedConcept
	synonyms []string
	order    int
}

func (c *snomedConcept) Code() string { return c.id }

// SNOMED serves a SNOMED CT edition snapshot identified by its
// edition+module+version triple. is-a is the transitive closure of the
// stored subsumption relation. Post-coordinated expressions are accepted
// only when the provider is loaded as authoritative for its edition.
type SNOMED struct {
	edition       string
	version       string
	authoritative bool

	byID    map[string]*snomedConcept
	ordered []*snomedConcept

	// ancestor closures are computed on demand and memoized
	closureMu sync.Mutex
	closure   map[*snomedConcept]map[*snomedConcept]bool
}

// LoadSNOMED reads a snapshot index: tab-separated lines of
// conceptId, active flag (0/1), preferred term, comma-separated parent
// ids, optional pipe-separated synonyms. Lines starting with '#' are
// skipped.
func LoadSNOMED(path, edition, version string, authoritative bool) (*SNOMED, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open SNOMED snapshot: %w", err)
	}
	defer f.Close()

	p := &SNOMED{
		edition:       edition,
		version:       version,
		authoritative: authoritative,
		byID:          make(map[string]*snomedConcept),
		closure:       make(map[*snomedConcept]map[*snomedConcept]bool),
	}

	type pending struct {
		concept *snomedConcept
		parents []string
	}
	var links []pending

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		c := &snomedConcept{
			id:     fields[0],
			active: fields[1] != "0",
			term:   fields[2],
			order:  len(p.ordered),
		}
		var parents []string
		if len(fields) >= 4 && fields[3] != "" {
			parents = strings.Split(fields[3], ",")
		}
		if len(fields) >= 5 && fields[4] != "" {
			c.synonyms = strings.Split(fields[4], "|")
		}
		p.byID[c.id] = c
		p.ordered = append(p.ordered, c)
		links = append(links, pending{concept: c, parents: parents})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read SNOMED snapshot: %w", err)
	}

	for _, l := range links {
		for _, pid := range l.parents {
			parent, ok := p.byID[pid]
			if !ok {
				continue
			}
			l.concept.parents = append(l.concept.parents, parent)
			parent.children = append(parent.children, l.concept)
		}
	}
	return p, nil
}

// System returns the SNOMED canonical url.
func (p *SNOMED) System() string { return SNOMEDSystem }

// Version returns the edition-qualified version uri.
func (p *SNOMED) Version() string {
	if p.edition == "" {
		return p.version
	}
	return SNOMEDSystem + "/" + p.edition + "/version/" + p.version
}

// PartialVersion returns the bare release date.
func (p *SNOMED) PartialVersion() string { return p.version }

// TotalCount returns the concept count of the snapshot.
func (p *SNOMED) TotalCount() int { return len(p.ordered) }

// Locate finds a concept id. Post-coordinated expressions are rejected
// unless the provider is authoritative for its edition.
func (p *SNOMED) Locate(code string) (Concept, string) {
	if strings.ContainsAny(code, ":+=|") {
		if !p.authoritative {
			return nil, ""
		}
		// Expressions validate against their focus concepts.
		focus := code
		if idx := strings.IndexAny(code, ":+"); idx != -1 {
			focus = strings.TrimSpace(code[:idx])
		}
		if _, ok := p.byID[focus]; !ok {
			return nil, ""
		}
		return &grammarConcept{code: code}, ""
	}
	c, ok := p.byID[code]
	if !ok {
		return nil, ""
	}
	if !c.active {
		return c, fmt.Sprintf("SNOMED concept %s is inactive", code)
	}
	return c, ""
}

// Display returns the preferred term.
func (p *SNOMED) Display(c Concept, languages []string) string {
	if sc, ok := c.(*snomedConcept); ok {
		return sc.term
	}
	return c.Code()
}

// Designations returns the preferred term and synonyms.
func (p *SNOMED) Designations(c Concept) []model.Designation {
	sc, ok := c.(*snomedConcept)
	if !ok {
		return nil
	}
	out := []model.Designation{{Language: "en", Value: sc.term}}
	for _, syn := range sc.synonyms {
		out = append(out, model.Designation{
			Language: "en",
			Use:      &model.Coding{System: SNOMEDSystem, Code: "900000000000013009", Display: "Synonym"},
			Value:    syn,
		})
	}
	return out
}

// Definition returns "".
func (p *SNOMED) Definition(c Concept) string { return "" }

// Properties returns the parent relationships and the inactive flag.
func (p *SNOMED) Properties(c Concept, propFilter []string) []model.Property {
	sc, ok := c.(*snomedConcept)
	if !ok {
		return nil
	}
	want := func(code string) bool {
		if len(propFilter) == 0 {
			return true
		}
		for _, w := range propFilter {
			if w == code {
				return true
			}
		}
		return false
	}
	var out []model.Property
	if want("parent") {
		for _, parent := range sc.parents {
			out = append(out, model.Property{Code: "parent", ValueCode: parent.id})
		}
	}
	if want("inactive") && !sc.active {
		v := true
		out = append(out, model.Property{Code: "inactive", ValueBoolean: &v})
	}
	if want("moduleId") && p.edition != "" {
		out = append(out, model.Property{Code: "moduleId", ValueCode: p.edition})
	}
	return out
}

// IsInactive reports the concept's active flag.
func (p *SNOMED) IsInactive(c Concept) bool {
	if sc, ok := c.(*snomedConcept); ok {
		return !sc.active
	}
	return false
}

// IsAbstract reports false; SNOMED snapshots carry no abstract marker.
func (p *SNOMED) IsAbstract(c Concept) bool { return false }

// IsDeprecated reports inactive concepts as deprecated.
func (p *SNOMED) IsDeprecated(c Concept) bool { return p.IsInactive(c) }

// ancestors returns the memoized transitive ancestor set of a concept.
func (p *SNOMED) ancestors(c *snomedConcept) map[*snomedConcept]bool {
	p.closureMu.Lock()
	defer p.closureMu.Unlock()
	return p.ancestorsLocked(c, make(map[*snomedConcept]bool))
}

func (p *SNOMED) ancestorsLocked(c *snomedConcept, inProgress map[*snomedConcept]bool) map[*snomedConcept]bool {
	if memo, ok := p.closure[c]; ok {
		return memo
	}
	inProgress[c] = true
	set := make(map[*snomedConcept]bool)
	for _, parent := range c.parents {
		if inProgress[parent] {
			// A cycle in the stored relation; surfaced by Subsumes.
			continue
		}
		set[parent] = true
		for a := range p.ancestorsLocked(parent, inProgress) {
			set[a] = true
		}
	}
	delete(inProgress, c)
	p.closure[c] = set
	return set
}

// hasCycle reports whether c participates in an ancestor cycle.
func (p *SNOMED) hasCycle(c *snomedConcept) bool {
	visited := make(map[*snomedConcept]bool)
	stack := append([]*snomedConcept(nil), c.parents...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == c {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, n.parents...)
	}
	return false
}

// Subsumes tests subsumption via the stored transitive closure.
func (p *SNOMED) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	sa, okA := a.(*snomedConcept)
	sb, okB := b.(*snomedConcept)
	if !okA || !okB {
		return NotSubsumed, txserver.NotSupported("subsumption over post-coordinated expressions")
	}
	if sa == sb {
		return Equivalent, nil
	}
	if p.hasCycle(sa) || p.hasCycle(sb) {
		return NotSubsumed, txserver.BusinessRule(fmt.Sprintf(
			"hierarchy cycle involving SNOMED concept %s", sa.id))
	}
	if p.ancestors(sb)[sa] {
		return Subsumes, nil
	}
	if p.ancestors(sa)[sb] {
		return SubsumedBy, nil
	}
	return NotSubsumed, nil
}

// Filter supports is-a, descendent-of and = on the concept (or code)
// property; the hierarchy operators walk the stored child relation.
func (p *SNOMED) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	if iss := opCtx.DeadCheck("filter:sct"); iss != nil {
		return nil, iss
	}
	if property != "concept" && property != "code" {
		return nil, txserver.NotSupported(fmt.Sprintf(
			"property '%s' is not filterable in SNOMED CT", property))
	}
	root, ok := p.byID[value]
	if !ok {
		return NewListFilter(nil), nil
	}
	switch op {
	case "is-a", "descendent-of":
		includeSelf := op == "is-a"
		visited := make(map[*snomedConcept]bool)
		var out []Concept
		var collect func(c *snomedConcept)
		collect = func(c *snomedConcept) {
			if visited[c] {
				return
			}
			visited[c] = true
			if c != root || includeSelf {
				out = append(out, c)
			}
			for _, child := range c.children {
				collect(child)
			}
		}
		collect(root)
		return NewListFilter(out), nil
	case "=":
		return NewListFilter([]Concept{root}), nil
	default:
		return nil, txserver.NotSupported(fmt.Sprintf(
			"filter operator '%s' is not supported by SNOMED CT", op))
	}
}

// Iterator returns a cursor over the filtered concepts, or the whole
// snapshot when filter is nil.
func (p *SNOMED) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	if iss := opCtx.DeadCheck("iterate:sct"); iss != nil {
		return nil, iss
	}
	if filter == nil {
		all := make([]Concept, len(p.ordered))
		for i, c := range p.ordered {
			all[i] = c
		}
		return NewSliceIterator(all), nil
	}
	concepts, ok := ListFilterConcepts(filter)
	if !ok {
		return nil, txserver.NotSupported("foreign filter context")
	}
	return NewSliceIterator(concepts), nil
}

// ParentCodes returns the direct parents of a concept.
func (p *SNOMED) ParentCodes(c Concept) []string {
	sc, ok := c.(*snomedConcept)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sc.parents))
	for _, parent := range sc.parents {
		out = append(out, parent.id)
	}
	return out
}

// FiltersNotClosed reports false: snapshot filters are complete.
func (p *SNOMED) FiltersNotClosed() bool { return false }

// Close drops the memoized closures.
func (p *SNOMED) Close() {
	p.closureMu.Lock()
	p.closure = make(map[*snomedConcept]map[*snomedConcept]bool)
	p.closureMu.Unlock()
}

var _ CodeSystemProvider = (*SNOMED)(nil)
