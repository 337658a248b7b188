// Package ops implements the operation workers: parameter marshalling,
// engine invocation and result assembly for $lookup, $validate-code,
// $subsumes, $expand, $translate and $batch. Workers operate on a parsed
// request and produce a response value, so the batch dispatcher can call
// them without HTTP plumbing.
package ops

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/library"
	"github.com/gofhir/txserver/model"
)

// Request is a parsed operation invocation.
type Request struct {
	// Provider is the per-request bound view.
	Provider *library.Provider

	// OpCtx carries request id, languages, deadline and the cycle stack.
	OpCtx *txserver.OperationContext

	// Params is the unified input: query string, form body and Parameters
	// resource inputs all reshape to this.
	Params *model.Parameters

	// InstanceID carries the {id} path segment of instance-level calls.
	InstanceID string
}

// Response is an operation result: a resource plus the HTTP status it
// surfaces with. Resource is always a valid FHIR resource — Parameters,
// ValueSet, Bundle or OperationOutcome — never an ad-hoc error shape.
type Response struct {
	Status   int
	Resource any
}

// paramTypes fixes the allowed primitive type per well-known parameter
// name, so query-string inputs reshape into correctly-typed Parameters.
var paramTypes = map[string]string{
	"code":            "code",
	"system":          "uri",
	"url":             "uri",
	"valueSet":        "uri",
	"version":         "string",
	"systemVersion":   "string",
	"display":         "string",
	"displayLanguage": "code",
	"language":        "code",
	"filter":          "string",
	"property":        "code",
	"designation":     "string",
	"offset":          "integer",
	"count":           "integer",
	"codeA":           "code",
	"codeB":           "code",
	"target":          "uri",
	"targetsystem":    "uri",
	"source":          "uri",
	"conceptMapVersion": "string",

	"activeOnly":             "boolean",
	"excludeNested":          "boolean",
	"excludeNotForUI":        "boolean",
	"excludePostCoordinated": "boolean",
	"includeDesignations":    "boolean",
	"includeDefinition":      "boolean",
	"generateNarrative":      "boolean",
	"limitedExpansion":       "boolean",
	"membershipOnly":         "boolean",
	"incomplete-ok":          "boolean",
	"lenient-display-validation": "boolean",
	"default-to-latest-version":  "boolean",
	"reverse":                "boolean",
	"abstract":               "boolean",
	"inferSystem":            "boolean",
}

// ParamsFromQuery reshapes a query string (or form body) into a
// Parameters resource. Repeated names become repeated parameters.
func ParamsFromQuery(values url.Values) (*model.Parameters, *txserver.Issue) {
	p := model.NewParameters()
	for name, list := range values {
		for _, raw := range list {
			param := model.Parameter{Name: name}
			switch paramTypes[name] {
			case "code":
				param.ValueCode = raw
			case "uri":
				param.ValueURI = raw
			case "boolean":
				b, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, txserver.BadRequest("parameter '" + name + "' is not a boolean: " + raw)
				}
				param.ValueBoolean = &b
			case "integer":
				n, err := strconv.Atoi(raw)
				if err != nil {
					return nil, txserver.BadRequest("parameter '" + name + "' is not an integer: " + raw)
				}
				param.ValueInteger = &n
			default:
				param.ValueString = raw
			}
			p.Parameter = append(p.Parameter, param)
		}
	}
	return p, nil
}

// buildParameters folds the request-shaped option parameters into the
// engine option set.
func buildParameters(req *Request) (*txserver.OperationParameters, *txserver.Issue) {
	p := txserver.DefaultParameters()
	p.HTTPLanguages = req.OpCtx.Languages

	boolOpt := func(name string, dst *bool) {
		if v, ok := req.Params.Bool(name); ok {
			*dst = v
		}
	}
	boolOpt("activeOnly", &p.ActiveOnly)
	boolOpt("excludeNested", &p.ExcludeNested)
	boolOpt("excludeNotForUI", &p.ExcludeNotForUI)
	boolOpt("excludePostCoordinated", &p.ExcludePostCoordinated)
	boolOpt("includeDesignations", &p.IncludeDesignations)
	boolOpt("includeDefinition", &p.IncludeDefinition)
	boolOpt("generateNarrative", &p.GenerateNarrative)
	boolOpt("limitedExpansion", &p.LimitedExpansion)
	boolOpt("membershipOnly", &p.MembershipOnly)
	boolOpt("incomplete-ok", &p.IncompleteOK)
	boolOpt("lenient-display-validation", &p.DisplayWarning)
	boolOpt("default-to-latest-version", &p.DefaultToLatestVersion)

	if v, ok := req.Params.String("displayLanguage"); ok {
		p.DisplayLanguages = strings.Split(v, ",")
	}
	for _, param := range req.Params.All("property") {
		if s, ok := param.AsString(); ok {
			p.Properties = append(p.Properties, s)
		}
	}
	for _, param := range req.Params.All("designation") {
		if s, ok := param.AsString(); ok {
			p.Designations = append(p.Designations, s)
		}
	}
	if v, ok := req.Params.String("filter"); ok {
		p.TextFilter = v
	}

	// Version pinning: system-version supplies a default, check-system-
	// version must match, force-system-version overrides.
	for name, mode := range map[string]txserver.VersionMode{
		"system-version":       txserver.VersionModeDefault,
		"check-system-version": txserver.VersionModeCheck,
		"force-system-version": txserver.VersionModeOverride,
	} {
		for _, param := range req.Params.All(name) {
			s, ok := param.AsString()
			if !ok {
				continue
			}
			rule, ok := txserver.ParseVersionRule(s)
			if !ok {
				return nil, txserver.BadRequest("malformed version rule: " + s)
			}
			rule.Mode = mode
			p.VersionRules = append(p.VersionRules, rule)
		}
	}
	for _, param := range req.Params.All("valueset-version") {
		s, ok := param.AsString()
		if !ok {
			continue
		}
		rule, ok := txserver.ParseVersionRule(s)
		if !ok {
			return nil, txserver.BadRequest("malformed value set version rule: " + s)
		}
		p.ValueSetVersionRules = append(p.ValueSetVersionRules, rule)
	}
	return p, nil
}

// requestCoding extracts the coding under validation: an explicit coding
// parameter, or system+code+display primitives.
func requestCoding(req *Request) (*model.Coding, bool) {
	if c, ok := req.Params.Coding("coding"); ok {
		return c, true
	}
	code, hasCode := req.Params.String("code")
	if !hasCode {
		return nil, false
	}
	system, _ := req.Params.String("system")
	version, _ := req.Params.String("systemVersion")
	if version == "" {
		version, _ = req.Params.String("version")
	}
	display, _ := req.Params.String("display")
	return &model.Coding{System: system, Version: version, Code: code, Display: display}, true
}

// outcomeResource renders issues as an OperationOutcome.
func outcomeResource(opCtx *txserver.OperationContext, issues ...*txserver.Issue) *model.OperationOutcome {
	out := model.NewOperationOutcome()
	for _, iss := range issues {
		entry := model.OutcomeIssue{
			Severity:    string(iss.Severity),
			Code:        string(iss.Code),
			Diagnostics: iss.Diagnostics,
			Expression:  iss.Expression,
			Location:    iss.Location,
		}
		if iss.DetailsText != "" {
			entry.Details = &model.CodeableConcept{Text: iss.DetailsText}
		}
		out.Issue = append(out.Issue, entry)
	}
	if len(out.Issue) == 0 {
		out.Issue = append(out.Issue, model.OutcomeIssue{
			Severity: "error", Code: "exception", Diagnostics: "unspecified failure",
		})
	}
	return out
}

// fail renders an issue as its OperationOutcome response.
func fail(opCtx *txserver.OperationContext, iss *txserver.Issue) Response {
	return Response{Status: iss.Status(), Resource: outcomeResource(opCtx, iss)}
}

// attachIssues nests warnings as an OperationOutcome "issues" parameter.
func attachIssues(opCtx *txserver.OperationContext, out *model.Parameters, issues []*txserver.Issue) {
	var keep []*txserver.Issue
	for _, iss := range issues {
		if iss != nil {
			keep = append(keep, iss)
		}
	}
	if len(keep) == 0 {
		return
	}
	raw, err := json.Marshal(outcomeResource(opCtx, keep...))
	if err != nil {
		return
	}
	out.Add(model.Parameter{Name: "issues", Resource: raw})
}
