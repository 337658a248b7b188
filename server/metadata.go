package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// capability shapes for the metadata endpoint. Only the elements the
// terminology surface needs are rendered.

type capabilityOperation struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

type capabilityInteraction struct {
	Code string `json:"code"`
}

type capabilityResource struct {
	Type        string                  `json:"type"`
	Interaction []capabilityInteraction `json:"interaction"`
	Operation   []capabilityOperation   `json:"operation"`
}

type capabilityRest struct {
	Mode     string               `json:"mode"`
	Resource []capabilityResource `json:"resource"`
}

type capabilityStatement struct {
	ResourceType string           `json:"resourceType"`
	Status       string           `json:"status"`
	Kind         string           `json:"kind"`
	FHIRVersion  string           `json:"fhirVersion"`
	Format       []string         `json:"format"`
	Rest         []capabilityRest `json:"rest"`
}

const operationDefBase = "http://hl7.org/fhir/OperationDefinition/"

// handleMetadata serves the CapabilityStatement for one mount.
func (s *Server) handleMetadata(ep Endpoint) echo.HandlerFunc {
	statement := capabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Kind:         "instance",
		FHIRVersion:  ep.FHIRVersion.Semver(),
		Format:       []string{fhirJSON},
		Rest: []capabilityRest{{
			Mode: "server",
			Resource: []capabilityResource{
				{
					Type: "CodeSystem",
					Interaction: []capabilityInteraction{
						{Code: "read"}, {Code: "search-type"},
					},
					Operation: []capabilityOperation{
						{Name: "lookup", Definition: operationDefBase + "CodeSystem-lookup"},
						{Name: "validate-code", Definition: operationDefBase + "CodeSystem-validate-code"},
						{Name: "subsumes", Definition: operationDefBase + "CodeSystem-subsumes"},
					},
				},
				{
					Type: "ValueSet",
					Interaction: []capabilityInteraction{
						{Code: "read"}, {Code: "search-type"},
					},
					Operation: []capabilityOperation{
						{Name: "expand", Definition: operationDefBase + "ValueSet-expand"},
						{Name: "validate-code", Definition: operationDefBase + "ValueSet-validate-code"},
					},
				},
				{
					Type: "ConceptMap",
					Interaction: []capabilityInteraction{
						{Code: "read"}, {Code: "search-type"},
					},
					Operation: []capabilityOperation{
						{Name: "translate", Definition: operationDefBase + "ConceptMap-translate"},
					},
				},
			},
		}},
	}
	return func(c echo.Context) error {
		if iss := negotiate(c); iss != nil {
			return respondIssue(c, iss)
		}
		c.Response().Header().Set(echo.HeaderContentType, fhirJSON)
		return c.JSON(http.StatusOK, statement)
	}
}
