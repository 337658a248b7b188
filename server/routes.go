package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
	"github.com/gofhir/txserver/ops"
)

// mount registers one endpoint's route table.
func (s *Server) mount(ep Endpoint) {
	base := "/" + strings.Trim(ep.MountPath, "/")
	g := s.echo.Group(base)

	g.GET("/metadata", s.handleMetadata(ep))

	g.GET("/CodeSystem", s.handleSearch(ep, "CodeSystem"))
	g.POST("/CodeSystem/_search", s.handleSearch(ep, "CodeSystem"))
	g.GET("/ValueSet", s.handleSearch(ep, "ValueSet"))
	g.POST("/ValueSet/_search", s.handleSearch(ep, "ValueSet"))
	g.GET("/ConceptMap", s.handleSearch(ep, "ConceptMap"))
	g.POST("/ConceptMap/_search", s.handleSearch(ep, "ConceptMap"))

	// Operation routes come before instance reads so "$lookup" does not
	// bind as an id.
	for _, m := range []func(string, echo.HandlerFunc, ...echo.MiddlewareFunc) *echo.Route{g.GET, g.POST} {
		m("/CodeSystem/$lookup", s.handleOp(ep, "CodeSystem", "$lookup"))
		m("/CodeSystem/:id/$lookup", s.handleOp(ep, "CodeSystem", "$lookup"))
		m("/CodeSystem/$validate-code", s.handleOp(ep, "CodeSystem", "$validate-code"))
		m("/CodeSystem/:id/$validate-code", s.handleOp(ep, "CodeSystem", "$validate-code"))
		m("/CodeSystem/$subsumes", s.handleOp(ep, "CodeSystem", "$subsumes"))
		m("/CodeSystem/:id/$subsumes", s.handleOp(ep, "CodeSystem", "$subsumes"))
		m("/ValueSet/$expand", s.handleOp(ep, "ValueSet", "$expand"))
		m("/ValueSet/:id/$expand", s.handleOp(ep, "ValueSet", "$expand"))
		m("/ValueSet/$validate-code", s.handleOp(ep, "ValueSet", "$validate-code"))
		m("/ValueSet/:id/$validate-code", s.handleOp(ep, "ValueSet", "$validate-code"))
		m("/ConceptMap/$translate", s.handleOp(ep, "ConceptMap", "$translate"))
		m("/ConceptMap/:id/$translate", s.handleOp(ep, "ConceptMap", "$translate"))
	}

	g.GET("/CodeSystem/:id", s.handleRead(ep, "CodeSystem"))
	g.GET("/ValueSet/:id", s.handleRead(ep, "ValueSet"))
	g.GET("/ConceptMap/:id", s.handleRead(ep, "ConceptMap"))

	g.POST("", s.handleBatch(ep))
	g.POST("/", s.handleBatch(ep))
}

// parseRequest builds the unified operation request from a gateway call.
func (s *Server) parseRequest(c echo.Context, ep Endpoint) (*ops.Request, *txserver.Issue) {
	if iss := negotiate(c); iss != nil {
		return nil, iss
	}
	opCtx, iss := s.opContext(c)
	if iss != nil {
		return nil, iss
	}

	params, iss := ops.ParamsFromQuery(c.QueryParams())
	if iss != nil {
		return nil, iss
	}

	if c.Request().Method == http.MethodPost {
		contentType := c.Request().Header.Get(echo.HeaderContentType)
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return nil, txserver.BadRequest("unreadable request body")
		}
		switch {
		case len(body) == 0:
			// A bare POST carries only query parameters.
		case strings.HasPrefix(contentType, echo.MIMEApplicationForm):
			values, err := url.ParseQuery(string(body))
			if err != nil {
				return nil, txserver.BadRequest("form body does not parse: " + err.Error())
			}
			formParams, iss := ops.ParamsFromQuery(values)
			if iss != nil {
				return nil, iss
			}
			params.Parameter = append(params.Parameter, formParams.Parameter...)
		default:
			resource, err := model.ParseParameters(body)
			if err != nil {
				return nil, txserver.BadRequest(err.Error())
			}
			params.Parameter = append(params.Parameter, resource.Parameter...)
		}
	}

	return &ops.Request{
		Provider:   s.providers[ep.MountPath],
		OpCtx:      opCtx,
		Params:     params,
		InstanceID: c.Param("id"),
	}, nil
}

// handleOp dispatches a terminology operation.
func (s *Server) handleOp(ep Endpoint, resourceType, op string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, iss := s.parseRequest(c, ep)
		if iss != nil {
			return respondIssue(c, iss)
		}
		resp := s.workers.Dispatch(resourceType, op, req)
		resp = translateResponse(resp, ep.FHIRVersion)
		s.lib.Metrics().RecordRequest(resourceType+op, 0, resp.Status >= http.StatusBadRequest)
		return respond(c, resp)
	}
}

// handleRead serves a resource by server id.
func (s *Server) handleRead(ep Endpoint, resourceType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if iss := negotiate(c); iss != nil {
			return respondIssue(c, iss)
		}
		opCtx, iss := s.opContext(c)
		if iss != nil {
			return respondIssue(c, iss)
		}
		prov := s.providers[ep.MountPath]
		id := c.Param("id")

		var resource any
		switch resourceType {
		case "CodeSystem":
			if cs := prov.GetCodeSystemByID(opCtx, id); cs != nil {
				resource = renderCodeSystem(cs, ep.FHIRVersion)
			}
		case "ValueSet":
			if vs := prov.GetValueSetByID(opCtx, id); vs != nil {
				resource = renderValueSet(vs, ep.FHIRVersion)
			}
		case "ConceptMap":
			if cm := prov.GetConceptMapByID(opCtx, id); cm != nil {
				resource = renderConceptMap(cm, ep.FHIRVersion)
			}
		}
		if resource == nil {
			return respondIssue(c, txserver.NotFound("no "+resourceType+" with id "+id))
		}
		c.Response().Header().Set(echo.HeaderContentType, fhirJSON)
		return c.JSON(http.StatusOK, resource)
	}
}

// handleBatch serves the root POST: a batch Bundle fanned out over the
// workers.
func (s *Server) handleBatch(ep Endpoint) echo.HandlerFunc {
	return func(c echo.Context) error {
		if iss := negotiate(c); iss != nil {
			return respondIssue(c, iss)
		}
		opCtx, iss := s.opContext(c)
		if iss != nil {
			return respondIssue(c, iss)
		}
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return respondIssue(c, txserver.BadRequest("unreadable request body"))
		}
		var bundle model.Bundle
		if err := json.Unmarshal(body, &bundle); err != nil {
			return respondIssue(c, txserver.BadRequest("request body is not a Bundle: "+err.Error()))
		}
		if bundle.ResourceType != "Bundle" {
			return respondIssue(c, txserver.BadRequest("expected a Bundle, got "+bundle.ResourceType))
		}
		req := &ops.Request{
			Provider: s.providers[ep.MountPath],
			OpCtx:    opCtx,
			Params:   model.NewParameters(),
		}
		resp := s.workers.Batch(req, &bundle, s.pool)
		s.lib.Metrics().RecordRequest("Bundle$batch", 0, resp.Status >= http.StatusBadRequest)
		return respond(c, resp)
	}
}
