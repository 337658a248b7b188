package txserver

import (
	"net/http"
)

// IssueSeverity represents the severity of an operation issue.
// Maps to OperationOutcome.issue.severity in FHIR.
type IssueSeverity string

const (
	// SeverityFatal indicates the issue is fatal and processing cannot continue.
	SeverityFatal IssueSeverity = "fatal"
	// SeverityError indicates an error that makes the operation fail.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a potential problem that should be reviewed.
	SeverityWarning IssueSeverity = "warning"
	// SeverityInformation indicates informational feedback.
	SeverityInformation IssueSeverity = "information"
)

// IssueType represents the type of an operation issue.
// Maps to OperationOutcome.issue.code in FHIR.
type IssueType string

const (
	// IssueTypeNotFound indicates a canonical URL or id was not resolvable.
	IssueTypeNotFound IssueType = "not-found"
	// IssueTypeInvalid indicates malformed input.
	IssueTypeInvalid IssueType = "invalid"
	// IssueTypeBusinessRule indicates a business rule violation, such as a
	// circular ValueSet reference or conflicting version rules.
	IssueTypeBusinessRule IssueType = "business-rule"
	// IssueTypeNotSupported indicates an operator or property the back-end
	// does not support.
	IssueTypeNotSupported IssueType = "not-supported"
	// IssueTypeCodeInvalid indicates a code unknown to its CodeSystem.
	IssueTypeCodeInvalid IssueType = "code-invalid"
	// IssueTypeNotInValueSet indicates a well-formed code that is not a
	// member of the value set.
	IssueTypeNotInValueSet IssueType = "not-in-vs"
	// IssueTypeTooCostly indicates the deadline or size cap was hit.
	IssueTypeTooCostly IssueType = "too-costly"
	// IssueTypeException indicates an internal failure.
	IssueTypeException IssueType = "exception"
	// IssueTypeProcessing indicates a generic processing problem.
	IssueTypeProcessing IssueType = "processing"
	// IssueTypeInformational indicates informational content.
	IssueTypeInformational IssueType = "informational"
	// IssueTypeIncomplete indicates incomplete data or processing.
	IssueTypeIncomplete IssueType = "incomplete"
)

// Issue represents a single operation issue. Engines raise *Issue values;
// workers catch them at the boundary and serialize to OperationOutcome.
// A single Issue maps 1:1 to an OperationOutcome.issue element plus the
// response HTTP status.
type Issue struct {
	// Severity of the issue
	Severity IssueSeverity `json:"severity"`

	// Code identifying the type of issue
	Code IssueType `json:"code"`

	// Diagnostics contains human-readable details about the issue
	Diagnostics string `json:"diagnostics,omitempty"`

	// DetailsText carries details.text when it differs from diagnostics
	DetailsText string `json:"detailsText,omitempty"`

	// Expression contains FHIRPath expression(s) to the element(s) in error
	Expression []string `json:"expression,omitempty"`

	// Location contains XPath or other location info
	Location []string `json:"location,omitempty"`

	// HTTPStatus is the HTTP status the issue should surface with.
	// Zero means the default for the severity (500 for error, 200 otherwise).
	HTTPStatus int `json:"-"`
}

// Error implements the error interface so an *Issue can travel through
// ordinary error returns.
func (i *Issue) Error() string {
	path := ""
	if len(i.Expression) > 0 {
		path = " at " + i.Expression[0]
	}
	return string(i.Severity) + ": " + i.Diagnostics + path
}

// IsError returns true if this is an error or fatal issue.
func (i *Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// IsWarning returns true if this is a warning.
func (i *Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// Status returns the HTTP status for the issue, applying the severity
// default when none was set explicitly.
func (i *Issue) Status() int {
	if i.HTTPStatus != 0 {
		return i.HTTPStatus
	}
	if i.IsError() {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// AsIssue extracts an *Issue from an error, wrapping foreign errors as an
// internal exception. It never returns nil for a non-nil error.
func AsIssue(err error) *Issue {
	if err == nil {
		return nil
	}
	if iss, ok := err.(*Issue); ok {
		return iss
	}
	return &Issue{
		Severity:    SeverityError,
		Code:        IssueTypeException,
		Diagnostics: err.Error(),
		HTTPStatus:  http.StatusInternalServerError,
	}
}

// IssueBuilder provides a fluent API for building issues.
type IssueBuilder struct {
	issue Issue
}

// NewIssue creates a new IssueBuilder.
func NewIssue(severity IssueSeverity, code IssueType) *IssueBuilder {
	return &IssueBuilder{
		issue: Issue{
			Severity: severity,
			Code:     code,
		},
	}
}

// Error creates an error issue.
func Error(code IssueType) *IssueBuilder {
	return NewIssue(SeverityError, code)
}

// Warning creates a warning issue.
func Warning(code IssueType) *IssueBuilder {
	return NewIssue(SeverityWarning, code)
}

// Info creates an informational issue.
func Info(code IssueType) *IssueBuilder {
	return NewIssue(SeverityInformation, code)
}

// Diagnostics sets the diagnostic message.
func (b *IssueBuilder) Diagnostics(msg string) *IssueBuilder {
	b.issue.Diagnostics = msg
	return b
}

// Details sets the details text.
func (b *IssueBuilder) Details(text string) *IssueBuilder {
	b.issue.DetailsText = text
	return b
}

// At sets the expression path.
func (b *IssueBuilder) At(path string) *IssueBuilder {
	b.issue.Expression = []string{path}
	return b
}

// AtPaths sets multiple expression paths.
func (b *IssueBuilder) AtPaths(paths ...string) *IssueBuilder {
	b.issue.Expression = paths
	return b
}

// Status sets the HTTP status the issue surfaces with.
func (b *IssueBuilder) Status(status int) *IssueBuilder {
	b.issue.HTTPStatus = status
	return b
}

// Build returns the constructed issue.
func (b *IssueBuilder) Build() *Issue {
	issue := b.issue
	return &issue
}

// NotFound builds an error issue for an unresolvable canonical or id.
func NotFound(diagnostics string) *Issue {
	return Error(IssueTypeNotFound).Diagnostics(diagnostics).Status(http.StatusNotFound).Build()
}

// BadRequest builds an error issue for malformed input.
func BadRequest(diagnostics string) *Issue {
	return Error(IssueTypeInvalid).Diagnostics(diagnostics).Status(http.StatusBadRequest).Build()
}

// BusinessRule builds an error issue for a business rule violation.
func BusinessRule(diagnostics string) *Issue {
	return Error(IssueTypeBusinessRule).Diagnostics(diagnostics).Status(http.StatusUnprocessableEntity).Build()
}

// NotSupported builds an error issue for an unsupported operator or property.
func NotSupported(diagnostics string) *Issue {
	return Error(IssueTypeNotSupported).Diagnostics(diagnostics).Status(http.StatusUnprocessableEntity).Build()
}

// TooCostly builds an error issue for a deadline or size cap overrun.
func TooCostly(diagnostics string) *Issue {
	return Error(IssueTypeTooCostly).Diagnostics(diagnostics).Status(http.StatusUnprocessableEntity).Build()
}
