package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// searchFilters are the supported search parameters for the terminology
// resource listings.
type searchFilters struct {
	url    string
	name   string
	status string
	count  int
	offset int
}

func parseSearchFilters(c echo.Context) (searchFilters, *txserver.Issue) {
	f := searchFilters{count: 100}
	f.url = c.QueryParam("url")
	f.name = c.QueryParam("name")
	f.status = c.QueryParam("status")
	if v := c.QueryParam("_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, txserver.BadRequest("_count is not a non-negative integer: " + v)
		}
		f.count = n
	}
	if v := c.QueryParam("_offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, txserver.BadRequest("_offset is not a non-negative integer: " + v)
		}
		f.offset = n
	}
	return f, nil
}

func (f searchFilters) matches(url, name, status string) bool {
	if f.url != "" && f.url != url {
		return false
	}
	if f.name != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(f.name)) {
		return false
	}
	if f.status != "" && f.status != status {
		return false
	}
	return true
}

// handleSearch serves the resource listings as searchset Bundles.
func (s *Server) handleSearch(ep Endpoint, resourceType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if iss := negotiate(c); iss != nil {
			return respondIssue(c, iss)
		}
		filters, iss := parseSearchFilters(c)
		if iss != nil {
			return respondIssue(c, iss)
		}

		prov := s.providers[ep.MountPath]
		var resources []any
		switch resourceType {
		case "CodeSystem":
			for _, cs := range prov.ListCodeSystems() {
				if filters.matches(cs.URL, cs.Name, cs.Status) {
					resources = append(resources, renderCodeSystem(cs, ep.FHIRVersion))
				}
			}
		case "ValueSet":
			for _, vs := range prov.ListValueSets() {
				if filters.matches(vs.URL, vs.Name, vs.Status) {
					resources = append(resources, renderValueSet(vs, ep.FHIRVersion))
				}
			}
		case "ConceptMap":
			for _, cm := range prov.ListConceptMaps() {
				if filters.matches(cm.URL, cm.Name, cm.Status) {
					resources = append(resources, renderConceptMap(cm, ep.FHIRVersion))
				}
			}
		}

		total := len(resources)
		if filters.offset >= len(resources) {
			resources = nil
		} else {
			resources = resources[filters.offset:]
		}
		if filters.count < len(resources) {
			resources = resources[:filters.count]
		}

		bundle := model.NewBundle("searchset")
		bundle.Total = &total
		for _, r := range resources {
			raw, err := json.Marshal(r)
			if err != nil {
				continue
			}
			bundle.Entry = append(bundle.Entry, model.BundleEntry{Resource: raw})
		}
		c.Response().Header().Set(echo.HeaderContentType, fhirJSON)
		return c.JSON(http.StatusOK, bundle)
	}
}
