package engine

import (
	"fmt"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/lang"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/provider"
)

// Validator decides whether a Coding or CodeableConcept satisfies a
// ValueSet. Membership evaluation short-circuits on the first decisive
// include or exclude instead of materializing the full expansion.
type Validator struct {
	res     Resolver
	exp     *Expander
	catalog *lang.Catalog
}

// NewValidator creates a validation engine sharing the expander's
// resolver.
func NewValidator(res Resolver, exp *Expander, catalog *lang.Catalog) *Validator {
	if catalog == nil {
		catalog = lang.DefaultCatalog()
	}
	return &Validator{res: res, exp: exp, catalog: catalog}
}

// Outcome is the decision for one validation.
type Outcome struct {
	Result  bool
	Code    string
	System  string
	Version string
	Display string
	Message string
	Issues  []*txserver.Issue
}

// ValidateCoding validates one coding against a ValueSet. vs may be nil
// for plain code-in-CodeSystem validation.
func (v *Validator) ValidateCoding(opCtx *txserver.OperationContext, coding *model.Coding, vs *model.ValueSet, params *txserver.OperationParameters) (*Outcome, *txserver.Issue) {
	if iss := opCtx.DeadCheck("validate-code"); iss != nil {
		return nil, iss
	}
	out := &Outcome{Code: coding.Code, System: coding.System, Version: coding.Version}

	version, iss := v.resolveVersion(params, coding.System, coding.Version)
	if iss != nil {
		return nil, iss
	}
	prov, iss := v.res.CodeSystem(opCtx, coding.System, version)
	if iss != nil {
		return nil, iss
	}
	if prov == nil {
		out.Message = v.catalog.Get("CODESYSTEM_NOT_FOUND", opCtx.Languages, coding.System)
		out.Issues = append(out.Issues, txserver.NotFound(out.Message))
		return out, nil
	}
	out.Version = prov.Version()

	concept, softMsg := prov.Locate(coding.Code)
	if concept == nil {
		out.Message = v.catalog.Get("CODE_NOT_FOUND", opCtx.Languages, coding.Code, coding.System)
		out.Issues = append(out.Issues, txserver.Error(txserver.IssueTypeCodeInvalid).
			Diagnostics(out.Message).Build())
		return out, nil
	}
	if softMsg != "" {
		out.Issues = append(out.Issues, txserver.Warning(txserver.IssueTypeBusinessRule).
			Diagnostics(softMsg).Build())
	}
	if params.ActiveOnly && prov.IsInactive(concept) {
		out.Message = v.catalog.Get("CODE_INACTIVE", opCtx.Languages, coding.Code, coding.System)
		out.Issues = append(out.Issues, txserver.Error(txserver.IssueTypeBusinessRule).
			Diagnostics(out.Message).Build())
		return out, nil
	}

	// Membership mode against the value set, when one is in play.
	if vs != nil {
		member, memberIssues, iss := v.member(opCtx, vs, prov, concept, params)
		if iss != nil {
			return nil, iss
		}
		out.Issues = append(out.Issues, memberIssues...)
		if !member {
			out.Message = v.catalog.Get("NOT_IN_VALUESET", opCtx.Languages, coding.Code, coding.System, vs.URL)
			out.Issues = append(out.Issues, txserver.Error(txserver.IssueTypeNotInValueSet).
				Diagnostics(out.Message).Build())
			return out, nil
		}
	}

	out.Result = true
	languages := effectiveLanguages(opCtx, params)
	if !params.MembershipOnly {
		out.Display = prov.Display(concept, languages)
	}

	// A supplied display must match the designation-aware display set.
	if coding.Display != "" && !params.MembershipOnly {
		known, languageSeen := v.displayMatches(prov, concept, coding.Display, languages)
		if !known {
			msg := v.catalog.Get("DISPLAY_MISMATCH", opCtx.Languages, coding.Display, coding.Code, out.Display)
			if params.DisplayWarning {
				out.Issues = append(out.Issues, txserver.Warning(txserver.IssueTypeInvalid).Diagnostics(msg).Build())
			} else {
				out.Result = false
				out.Message = msg
				out.Issues = append(out.Issues, txserver.Error(txserver.IssueTypeInvalid).Diagnostics(msg).Build())
			}
		} else if !languageSeen && len(languages) > 0 {
			out.Issues = append(out.Issues, txserver.Warning(txserver.IssueTypeInformational).
				Diagnostics(v.catalog.Get("DISPLAY_LANGUAGE_MISMATCH", opCtx.Languages, languages[0], coding.Code)).
				Build())
		}
	}
	return out, nil
}

// ValidateConcept validates a CodeableConcept: the first positively
// matching coding wins, and per-coding diagnostics are collected.
func (v *Validator) ValidateConcept(opCtx *txserver.OperationContext, concept *model.CodeableConcept, vs *model.ValueSet, params *txserver.OperationParameters) (*Outcome, *txserver.Issue) {
	if len(concept.Coding) == 0 {
		return &Outcome{Message: "CodeableConcept carries no coding"}, nil
	}
	var collected []*txserver.Issue
	var firstFail *Outcome
	for i := range concept.Coding {
		out, iss := v.ValidateCoding(opCtx, &concept.Coding[i], vs, params)
		if iss != nil {
			return nil, iss
		}
		if out.Result {
			out.Issues = append(collected, out.Issues...)
			return out, nil
		}
		collected = append(collected, out.Issues...)
		if firstFail == nil {
			firstFail = out
		}
	}
	firstFail.Issues = collected
	return firstFail, nil
}

// ImplicitValueSet resolves the value set bound to a code system via
// CodeSystem.valueSet, when the validation names no explicit one.
func (v *Validator) ImplicitValueSet(opCtx *txserver.OperationContext, system string) (*model.ValueSet, *txserver.Issue) {
	prov, iss := v.res.CodeSystem(opCtx, system, "")
	if iss != nil || prov == nil {
		return nil, iss
	}
	type resourceCarrier interface{ Resource() *model.CodeSystem }
	rc, ok := prov.(resourceCarrier)
	if !ok || rc.Resource().ValueSet == "" {
		return nil, nil
	}
	url, version := model.SplitCanonical(rc.Resource().ValueSet)
	return v.res.ValueSet(opCtx, url, version)
}

// member evaluates the value set's includes and excludes against this
// code only, short-circuiting on the first decisive rule.
func (v *Validator) member(opCtx *txserver.OperationContext, vs *model.ValueSet, prov provider.CodeSystemProvider, concept provider.Concept, params *txserver.OperationParameters) (bool, []*txserver.Issue, *txserver.Issue) {
	if iss := opCtx.SeeContext(vs.URL); iss != nil {
		return false, nil, iss
	}
	defer opCtx.LeaveContext(vs.URL)

	var issues []*txserver.Issue

	// A precomputed expansion decides membership directly.
	if vs.Compose == nil && vs.Expansion != nil {
		var entries []*entry
		flattenContains(vs.Expansion.Contains, &entries)
		for _, e := range entries {
			if e.system == prov.System() && e.code == concept.Code() {
				return true, issues, nil
			}
		}
		return false, issues, nil
	}
	if vs.Compose == nil {
		return false, issues, nil
	}

	included := false
	for i := range vs.Compose.Include {
		if iss := opCtx.DeadCheck(fmt.Sprintf("membership include %d of %s", i, vs.URL)); iss != nil {
			return false, nil, iss
		}
		covered, covIssues, iss := v.includeCovers(opCtx, &vs.Compose.Include[i], prov, concept, params)
		if iss != nil {
			return false, nil, iss
		}
		issues = append(issues, covIssues...)
		if covered {
			included = true
			break
		}
	}
	if !included {
		return false, issues, nil
	}
	for i := range vs.Compose.Exclude {
		covered, _, iss := v.includeCovers(opCtx, &vs.Compose.Exclude[i], prov, concept, params)
		if iss != nil {
			return false, nil, iss
		}
		if covered {
			return false, issues, nil
		}
	}
	return true, issues, nil
}

// includeCovers decides whether one include (or exclude) covers the code.
func (v *Validator) includeCovers(opCtx *txserver.OperationContext, inc *model.Include, prov provider.CodeSystemProvider, concept provider.Concept, params *txserver.OperationParameters) (bool, []*txserver.Issue, *txserver.Issue) {
	var issues []*txserver.Issue

	// Imports: the code must be a member of every sibling import.
	for _, ref := range inc.ValueSet {
		url, version := model.SplitCanonical(ref)
		sub, iss := v.res.ValueSet(opCtx, url, version)
		if iss != nil {
			return false, nil, iss
		}
		if sub == nil {
			return false, nil, txserver.NotFound(v.catalog.Get("VALUESET_NOT_FOUND", opCtx.Languages, ref))
		}
		member, subIssues, iss := v.member(opCtx.Copy(), sub, prov, concept, params)
		if iss != nil {
			return false, nil, iss
		}
		issues = append(issues, subIssues...)
		if !member {
			return false, issues, nil
		}
	}
	if inc.System == "" {
		return len(inc.ValueSet) > 0, issues, nil
	}

	if inc.System != prov.System() {
		return false, issues, nil
	}
	version, iss := v.resolveVersion(params, inc.System, inc.Version)
	if iss != nil {
		return false, nil, iss
	}
	if version != "" && prov.Version() != "" && version != prov.Version() &&
		model.MajorMinor(version) != model.MajorMinor(prov.Version()) {
		return false, issues, nil
	}

	switch {
	case len(inc.Concept) > 0:
		for i := range inc.Concept {
			if codesEqual(prov, inc.Concept[i].Code, concept.Code()) {
				return true, issues, nil
			}
		}
		return false, issues, nil

	case len(inc.Filter) > 0:
		for i := range inc.Filter {
			f := &inc.Filter[i]
			fc, iss := prov.Filter(opCtx, f.Property, f.Op, f.Value)
			if iss != nil {
				return false, nil, iss
			}
			set, ok := filterCodeSet(fc)
			if !ok {
				return false, nil, txserver.NotSupported(v.catalog.Get(
					"FILTER_NOT_SUPPORTED", opCtx.Languages, f.Property, f.Op, inc.System))
			}
			if !set[concept.Code()] {
				return false, issues, nil
			}
		}
		return true, issues, nil

	default:
		// Whole-system include: locating the code already proved
		// membership.
		return true, issues, nil
	}
}

// displayMatches tests a supplied display against the concept's display
// and designations, case-insensitively. languageSeen reports whether any
// designation matched the requested language context.
func (v *Validator) displayMatches(prov provider.CodeSystemProvider, concept provider.Concept, display string, languages []string) (known, languageSeen bool) {
	want := strings.ToLower(strings.TrimSpace(display))
	if strings.ToLower(prov.Display(concept, nil)) == want {
		known = true
	}
	for _, d := range prov.Designations(concept) {
		match := strings.ToLower(strings.TrimSpace(d.Value)) == want
		if match {
			known = true
		}
		if len(languages) > 0 && lang.Matches(d.Language, languages) {
			languageSeen = true
		}
	}
	if len(languages) == 0 {
		languageSeen = true
	}
	return known, languageSeen
}

func (v *Validator) resolveVersion(params *txserver.OperationParameters, system, version string) (string, *txserver.Issue) {
	rule, ok := params.VersionRuleFor(system)
	if !ok {
		return version, nil
	}
	switch rule.Mode {
	case txserver.VersionModeOverride:
		return rule.Version, nil
	case txserver.VersionModeCheck:
		if version != "" && version != rule.Version {
			return "", txserver.BusinessRule(v.catalog.Get(
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

// codesEqual compares codes under the system's case discipline.
func codesEqual(prov provider.CodeSystemProvider, a, b string) bool {
	if c, _ := prov.Locate(a); c != nil {
		return c.Code() == b || strings.EqualFold(c.Code(), b) && !caseSensitive(prov)
	}
	return a == b
}

func caseSensitive(prov provider.CodeSystemProvider) bool {
	type resourceCarrier interface{ Resource() *model.CodeSystem }
	if rc, ok := prov.(resourceCarrier); ok {
		return rc.Resource().CaseSensitive
	}
	return true
}
