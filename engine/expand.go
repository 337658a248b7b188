// Package engine implements the ValueSet expansion and validation engines
// and the ConceptMap translation engine. The engines reference code
// systems and value sets through the Resolver interface by url and
// version, never by direct object linkage, so sub-evaluation carries the
// operation context's stack for cycle detection.
package engine

import (
	"fmt"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/lang"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
)

// Resolver supplies the engines with code system providers and value set
// resources. A nil result with a nil issue means "unknown".
type Resolver interface {
	CodeSystem(opCtx *txserver.OperationContext, system, version string) (provider.CodeSystemProvider, *txserver.Issue)
	ValueSet(opCtx *txserver.OperationContext, url, version string) (*model.ValueSet, *txserver.Issue)
}

// Expander evaluates ValueSet compositions into expansions.
type Expander struct {
	res     Resolver
	catalog *lang.Catalog
}

// NewExpander creates an expansion engine over a resolver.
func NewExpander(res Resolver, catalog *lang.Catalog) *Expander {
	if catalog == nil {
		catalog = lang.DefaultCatalog()
	}
	return &Expander{res: res, catalog: catalog}
}

// entry is one concept tuple accumulated by the include phase.
type entry struct {
	system      string
	version     string
	code        string
	display     string
	designations []model.Designation
	properties  []model.Property
	definition  string
	inactive    bool
	abstract    bool
	parents     []string
}

func (e *entry) key() string { return e.system + "|" + e.code }

// Result is an expansion with the issues that shaped it.
type Result struct {
	Expansion *model.Expansion
	Issues    []*txserver.Issue
	NotClosed bool
	Total     int
}

// Expand materializes a ValueSet under the given parameters, offset and
// count. The result is a pure function of (vs identity+version,
// params.Hash(), language context, offset, count).
func (x *Expander) Expand(opCtx *txserver.OperationContext, vs *model.ValueSet, params *txserver.OperationParameters, offset, count int) (*Result, *txserver.Issue) {
	if iss := opCtx.SeeContext(vs.URL); iss != nil {
		return nil, iss
	}
	defer opCtx.LeaveContext(vs.URL)

	entries, notClosed, issues, iss := x.collect(opCtx, vs, params)
	if iss != nil {
		return nil, iss
	}

	// Free-text filter, matched against display and designations.
	if params.TextFilter != "" {
		needle := strings.ToLower(params.TextFilter)
		var kept []*entry
		for _, e := range entries {
			if matchesText(e, needle) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	total := len(entries)

	// Size cap: truncated with an information issue under limitedExpansion,
	// a too-costly failure otherwise.
	limit := params.ExpansionLimit
	if limit > 0 && total > limit {
		if !params.LimitedExpansion {
			return nil, txserver.TooCostly(x.catalog.Get(
				"EXPANSION_TOO_COSTLY", opCtx.Languages, vs.URL, limit))
		}
		entries = entries[:limit]
		issues = append(issues, txserver.Info(txserver.IssueTypeInformational).
			Diagnostics(x.catalog.Get("EXPANSION_LIMITED", opCtx.Languages, limit)).
			Build())
	}

	// Paging over the logical stream.
	if offset > 0 {
		if offset >= len(entries) {
			entries = nil
		} else {
			entries = entries[offset:]
		}
	}
	if count >= 0 && count < len(entries) {
		entries = entries[:count]
	}

	expansion := &model.Expansion{
		Identifier: "urn:uuid:" + opCtx.RequestID,
		Total:      total,
		Offset:     offset,
	}
	expansion.Parameter = append(expansion.Parameter,
		model.ExpansionParameter{Name: "excludeNested", ValueBoolean: boolPtr(params.ExcludeNested)})
	if params.ActiveOnly {
		expansion.Parameter = append(expansion.Parameter,
			model.ExpansionParameter{Name: "activeOnly", ValueBoolean: boolPtr(true)})
	}
	if notClosed {
		expansion.Parameter = append(expansion.Parameter,
			model.ExpansionParameter{Name: "not-closed", ValueBoolean: boolPtr(true)})
	}

	languages := effectiveLanguages(opCtx, params)
	for _, e := range entries {
		expansion.Contains = append(expansion.Contains, x.render(e, params, languages))
	}
	if !params.ExcludeNested {
		expansion.Contains = nest(entries, expansion.Contains)
	}

	return &Result{
		Expansion: expansion,
		Issues:    issues,
		NotClosed: notClosed,
		Total:     total,
	}, nil
}

// collect runs the include and exclude phases, returning the surviving
// entries in stable order.
func (x *Expander) collect(opCtx *txserver.OperationContext, vs *model.ValueSet, params *txserver.OperationParameters) ([]*entry, bool, []*txserver.Issue, *txserver.Issue) {
	var issues []*txserver.Issue
	notClosed := false

	// A precomputed expansion short-circuits composition.
	if vs.Expansion != nil && len(vs.Expansion.Contains) > 0 && vs.Compose == nil {
		var entries []*entry
		flattenContains(vs.Expansion.Contains, &entries)
		return entries, false, nil, nil
	}
	if vs.Compose == nil {
		return nil, false, nil, nil
	}

	// Enumerated includes run ahead of filter and whole-system includes.
	order := make([]int, 0, len(vs.Compose.Include))
	for i := range vs.Compose.Include {
		if len(vs.Compose.Include[i].Concept) > 0 {
			order = append(order, i)
		}
	}
	for i := range vs.Compose.Include {
		if len(vs.Compose.Include[i].Concept) == 0 {
			order = append(order, i)
		}
	}

	seen := make(map[string]*entry)
	var ordered []*entry
	for _, i := range order {
		if iss := opCtx.DeadCheck(fmt.Sprintf("expand include %d of %s", i, vs.URL)); iss != nil {
			return nil, false, nil, iss
		}
		got, nc, incIssues, iss := x.evalInclude(opCtx, &vs.Compose.Include[i], params)
		if iss != nil {
			return nil, false, nil, iss
		}
		notClosed = notClosed || nc
		issues = append(issues, incIssues...)
		for _, e := range got {
			// Dedup by (system, code); the first occurrence wins display
			// selection, so enumerated-include order beats filter order.
			if _, dup := seen[e.key()]; dup {
				continue
			}
			seen[e.key()] = e
			ordered = append(ordered, e)
		}
	}

	// Exclusions are applied after inclusions, set-minus by (system, code).
	for i := range vs.Compose.Exclude {
		if iss := opCtx.DeadCheck(fmt.Sprintf("expand exclude %d of %s", i, vs.URL)); iss != nil {
			return nil, false, nil, iss
		}
		got, _, _, iss := x.evalInclude(opCtx, &vs.Compose.Exclude[i], params)
		if iss != nil {
			return nil, false, nil, iss
		}
		for _, e := range got {
			delete(seen, e.key())
		}
	}

	var kept []*entry
	for _, e := range ordered {
		if _, ok := seen[e.key()]; !ok {
			continue
		}
		if params.ActiveOnly && e.inactive {
			continue
		}
		if params.ExcludeNotForUI && e.abstract {
			continue
		}
		kept = append(kept, e)
	}
	return kept, notClosed, issues, nil
}

// evalInclude accumulates the concept stream of one include (or exclude).
func (x *Expander) evalInclude(opCtx *txserver.OperationContext, inc *model.Include, params *txserver.OperationParameters) ([]*entry, bool, []*txserver.Issue, *txserver.Issue) {
	var issues []*txserver.Issue
	notClosed := false

	// An include without a system must carry value set imports.
	if inc.System == "" && len(inc.ValueSet) == 0 {
		return nil, false, nil, txserver.BadRequest("include has neither system nor valueSet")
	}

	// Imports expand recursively, inheriting params and context; siblings
	// in the same include intersect.
	var importSet map[string]bool
	var importOrder []*entry
	for _, ref := range inc.ValueSet {
		url, version := model.SplitCanonical(ref)
		version, iss := x.resolveValueSetVersion(params, url, version)
		if iss != nil {
			return nil, false, nil, iss
		}
		sub, iss := x.res.ValueSet(opCtx, url, version)
		if iss != nil {
			return nil, false, nil, iss
		}
		if sub == nil {
			return nil, false, nil, txserver.NotFound(x.catalog.Get("VALUESET_NOT_FOUND", opCtx.Languages, ref))
		}
		subEntries, nc, subIssues, iss := func() ([]*entry, bool, []*txserver.Issue, *txserver.Issue) {
			child := opCtx.Copy()
			if iss := child.SeeContext(sub.URL); iss != nil {
				return nil, false, nil, iss
			}
			defer child.LeaveContext(sub.URL)
			return x.collect(child, sub, params)
		}()
		if iss != nil {
			return nil, false, nil, iss
		}
		notClosed = notClosed || nc
		issues = append(issues, subIssues...)

		if importSet == nil {
			importSet = make(map[string]bool, len(subEntries))
			for _, e := range subEntries {
				importSet[e.key()] = true
			}
			importOrder = subEntries
		} else {
			next := make(map[string]bool)
			for _, e := range subEntries {
				if importSet[e.key()] {
					next[e.key()] = true
				}
			}
			importSet = next
			var kept []*entry
			for _, e := range importOrder {
				if importSet[e.key()] {
					kept = append(kept, e)
				}
			}
			importOrder = kept
		}
	}

	if inc.System == "" {
		return importOrder, notClosed, issues, nil
	}

	version, iss := x.resolveSystemVersion(params, inc.System, inc.Version)
	if iss != nil {
		return nil, false, nil, iss
	}
	prov, iss := x.res.CodeSystem(opCtx, inc.System, version)
	if iss != nil {
		return nil, false, nil, iss
	}
	if prov == nil {
		return nil, false, nil, txserver.NotFound(x.catalog.Get("CODESYSTEM_NOT_FOUND", opCtx.Languages, inc.System))
	}
	notClosed = notClosed || prov.FiltersNotClosed() && len(inc.Filter) > 0

	var out []*entry
	emit := func(c provider.Concept, display string) {
		e := x.makeEntry(prov, c, params)
		if display != "" {
			e.display = display
		}
		out = append(out, e)
	}

	switch {
	case len(inc.Concept) > 0:
		for i := range inc.Concept {
			ref := &inc.Concept[i]
			c, _ := prov.Locate(ref.Code)
			if c == nil {
				issues = append(issues, txserver.Warning(txserver.IssueTypeCodeInvalid).
					Diagnostics(x.catalog.Get("CODE_NOT_FOUND", opCtx.Languages, ref.Code, inc.System)).
					Build())
				continue
			}
			e := x.makeEntry(prov, c, params)
			if ref.Display != "" {
				e.display = ref.Display
			}
			e.designations = append(e.designations, ref.Designation...)
			out = append(out, e)
		}

	case len(inc.Filter) > 0:
		// AND-compose: the first filter drives iteration, the rest
		// post-filter by membership.
		contexts := make([]provider.FilterContext, 0, len(inc.Filter))
		for i := range inc.Filter {
			f := &inc.Filter[i]
			if f.Value == "" && f.ValueAbsentReason != "" {
				// The filter value is absent with a data-absent-reason;
				// nothing can match it.
				contexts = append(contexts, provider.NewListFilter(nil))
				continue
			}
			fc, iss := prov.Filter(opCtx, f.Property, f.Op, f.Value)
			if iss != nil {
				return nil, false, nil, iss
			}
			contexts = append(contexts, fc)
		}
		rest := make([]map[string]bool, 0, len(contexts))
		for _, fc := range contexts[1:] {
			set, ok := filterCodeSet(fc)
			if !ok {
				return nil, false, nil, txserver.NotSupported("filter cannot be post-composed")
			}
			rest = append(rest, set)
		}
		it, itIss := prov.Iterator(opCtx, contexts[0])
		if itIss != nil {
			return nil, false, nil, itIss
		}
		func() {
			defer it.Close()
			for {
				c, ok := it.Next()
				if !ok {
					return
				}
				if iss = opCtx.DeadCheck("expand filter " + inc.System); iss != nil {
					return
				}
				match := true
				for _, set := range rest {
					if !set[c.Code()] {
						match = false
						break
					}
				}
				if match {
					emit(c, "")
				}
			}
		}()
		if iss != nil {
			return nil, false, nil, iss
		}

	default:
		// Whole-system include.
		it, itIss := prov.Iterator(opCtx, nil)
		if itIss != nil {
			return nil, false, nil, itIss
		}
		func() {
			defer it.Close()
			for {
				c, ok := it.Next()
				if !ok {
					return
				}
				if iss = opCtx.DeadCheck("expand system " + inc.System); iss != nil {
					return
				}
				emit(c, "")
			}
		}()
		if iss != nil {
			return nil, false, nil, iss
		}
	}

	// Intersect with sibling imports in the same include.
	if importSet != nil {
		var kept []*entry
		for _, e := range out {
			if importSet[e.key()] {
				kept = append(kept, e)
			}
		}
		out = kept
	}
	return out, notClosed, issues, nil
}

func (x *Expander) makeEntry(prov provider.CodeSystemProvider, c provider.Concept, params *txserver.OperationParameters) *entry {
	e := &entry{
		system:   prov.System(),
		version:  prov.Version(),
		code:     c.Code(),
		display:  prov.Display(c, nil),
		inactive: prov.IsInactive(c),
		abstract: prov.IsAbstract(c),
	}
	e.designations = prov.Designations(c)
	if params.IncludeDefinition {
		e.definition = prov.Definition(c)
	}
	if len(params.Properties) > 0 {
		e.properties = prov.Properties(c, params.Properties)
	}
	if hp, ok := prov.(provider.HierarchyProvider); ok {
		e.parents = hp.ParentCodes(c)
	}
	return e
}

// render selects the display per language priority and attaches the
// requested designations.
func (x *Expander) render(e *entry, params *txserver.OperationParameters, languages []string) model.Contains {
	c := model.Contains{
		System:   e.system,
		Version:  e.version,
		Code:     e.code,
		Display:  e.display,
		Inactive: e.inactive,
		Abstract: e.abstract,
	}
	if len(languages) > 0 && len(e.designations) > 0 {
		langs := make([]string, len(e.designations))
		for i, d := range e.designations {
			langs[i] = d.Language
		}
		if idx := lang.Select(langs, languages); idx >= 0 {
			c.Display = e.designations[idx].Value
		}
	}
	if params.IncludeDesignations {
		for _, d := range e.designations {
			if len(params.Designations) > 0 && !designationWanted(d, params.Designations) {
				continue
			}
			if len(params.Designations) == 0 && len(languages) > 0 && !lang.Matches(d.Language, languages) {
				continue
			}
			c.Designation = append(c.Designation, d)
		}
	}
	c.Property = e.properties
	if params.IncludeDefinition && e.definition != "" {
		c.Property = append(c.Property, model.Property{Code: "definition", ValueString: e.definition})
	}
	return c
}

// designationWanted tests a designation against the designations[]
// selector: "language" or "system|code" of the use coding.
func designationWanted(d model.Designation, selectors []string) bool {
	for _, sel := range selectors {
		if sys, code, ok := strings.Cut(sel, "|"); ok {
			if d.Use != nil && d.Use.System == sys && d.Use.Code == code {
				return true
			}
			continue
		}
		if d.Language == sel {
			return true
		}
	}
	return false
}

// nest rebuilds the hierarchy when the back-end reported parent edges:
// a child with at least one parent present in the expansion is grouped
// under the first of its parents that is present.
func nest(entries []*entry, flat []model.Contains) []model.Contains {
	if len(entries) != len(flat) {
		return flat
	}
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.key()] = i
	}
	children := make(map[int][]int)
	isChild := make([]bool, len(entries))
	for i, e := range entries {
		for _, parent := range e.parents {
			if pi, ok := index[e.system+"|"+parent]; ok {
				children[pi] = append(children[pi], i)
				isChild[i] = true
				break
			}
		}
	}
	if len(children) == 0 {
		return flat
	}
	var build func(i int) model.Contains
	build = func(i int) model.Contains {
		c := flat[i]
		for _, ci := range children[i] {
			c.Contains = append(c.Contains, build(ci))
		}
		return c
	}
	var roots []model.Contains
	for i := range entries {
		if !isChild[i] {
			roots = append(roots, build(i))
		}
	}
	return roots
}

func matchesText(e *entry, needle string) bool {
	if strings.Contains(strings.ToLower(e.display), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(e.code), needle) {
		return true
	}
	for _, d := range e.designations {
		if strings.Contains(strings.ToLower(d.Value), needle) {
			return true
		}
	}
	return false
}

// resolveSystemVersion applies the version rules to a system reference.
func (x *Expander) resolveSystemVersion(params *txserver.OperationParameters, system, version string) (string, *txserver.Issue) {
	rule, ok := params.VersionRuleFor(system)
	if !ok {
		return version, nil
	}
	switch rule.Mode {
	case txserver.VersionModeOverride:
		return rule.Version, nil
	case txserver.VersionModeCheck:
		if version != "" && version != rule.Version {
			return "", txserver.BusinessRule(x.catalog.Get(
				"VERSION_MISMATCH", nil, version, rule.Version, system))
		}
		return rule.Version, nil
	default:
		if version == "" {
			return rule.Version, nil
		}
		return version, nil
	}
}

// resolveValueSetVersion applies the value set version rules to an import.
func (x *Expander) resolveValueSetVersion(params *txserver.OperationParameters, url, version string) (string, *txserver.Issue) {
	rule, ok := params.ValueSetVersionRuleFor(url)
	if !ok {
		return version, nil
	}
	switch rule.Mode {
	case txserver.VersionModeOverride:
		return rule.Version, nil
	case txserver.VersionModeCheck:
		if version != "" && version != rule.Version {
			return "", txserver.BusinessRule(x.catalog.Get(
				"VERSION_MISMATCH", nil, version, rule.Version, url))
		}
		return rule.Version, nil
	default:
		if version == "" {
			return rule.Version, nil
		}
		return version, nil
	}
}

// filterCodeSet extracts the code membership set of a list-backed filter.
func filterCodeSet(fc provider.FilterContext) (map[string]bool, bool) {
	concepts, ok := provider.ListFilterConcepts(fc)
	if !ok {
		return nil, false
	}
	set := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		set[c.Code()] = true
	}
	return set, true
}

func flattenContains(contains []model.Contains, out *[]*entry) {
	for i := range contains {
		c := &contains[i]
		*out = append(*out, &entry{
			system:       c.System,
			version:      c.Version,
			code:         c.Code,
			display:      c.Display,
			inactive:     c.Inactive,
			abstract:     c.Abstract,
			designations: c.Designation,
		})
		flattenContains(c.Contains, out)
	}
}

func effectiveLanguages(opCtx *txserver.OperationContext, params *txserver.OperationParameters) []string {
	if langs := params.Languages(); len(langs) > 0 {
		return langs
	}
	return opCtx.Languages
}

func boolPtr(b bool) *bool { return &b }
