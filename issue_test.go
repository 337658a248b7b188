package txserver

import (
	"errors"
	"net/http"
	"testing"
)

func TestIssueBuilder(t *testing.T) {
	iss := Error(IssueTypeCodeInvalid).
		Diagnostics("code 'x' is not known").
		At("Coding.code").
		Status(http.StatusNotFound).
		Build()

	if iss.Severity != SeverityError {
		t.Errorf("Severity = %s, want error", iss.Severity)
	}
	if iss.Code != IssueTypeCodeInvalid {
		t.Errorf("Code = %s, want code-invalid", iss.Code)
	}
	if got := iss.Status(); got != http.StatusNotFound {
		t.Errorf("Status() = %d, want 404", got)
	}
	if len(iss.Expression) != 1 || iss.Expression[0] != "Coding.code" {
		t.Errorf("Expression = %v", iss.Expression)
	}
}

func TestIssueStatusDefaults(t *testing.T) {
	tests := []struct {
		name string
		iss  *Issue
		want int
	}{
		{"error defaults to 500", Error(IssueTypeException).Build(), http.StatusInternalServerError},
		{"warning defaults to 200", Warning(IssueTypeInvalid).Build(), http.StatusOK},
		{"explicit status wins", BadRequest("nope"), http.StatusBadRequest},
		{"not-found is 404", NotFound("missing"), http.StatusNotFound},
		{"too-costly is 422", TooCostly("deadline"), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.iss.Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAsIssue(t *testing.T) {
	orig := NotFound("missing")
	if got := AsIssue(orig); got != orig {
		t.Error("AsIssue should return the original *Issue unchanged")
	}

	wrapped := AsIssue(errors.New("boom"))
	if wrapped.Code != IssueTypeException {
		t.Errorf("Code = %s, want exception", wrapped.Code)
	}
	if wrapped.Status() != http.StatusInternalServerError {
		t.Errorf("Status() = %d, want 500", wrapped.Status())
	}

	if AsIssue(nil) != nil {
		t.Error("AsIssue(nil) should be nil")
	}
}

func TestIssueError(t *testing.T) {
	iss := Error(IssueTypeInvalid).Diagnostics("bad input").At("Parameters.code").Build()
	want := "error: bad input at Parameters.code"
	if iss.Error() != want {
		t.Errorf("Error() = %q, want %q", iss.Error(), want)
	}
}
