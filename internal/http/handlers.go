package http

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"regioncd/app/internal/catalog"
	"regioncd/app/internal/http/templates"
	"regioncd/app/internal/pnu"
	"regioncd/app/internal/region"
	"regioncd/app/internal/version"
)

const (
	htmlContentType  = "text/html; charset=utf-8"
	healthTimeFormat = "2006-01-02T15:04:05Z"
	maxRows          = 1000

	catalogDisabled = "disabled"
	catalogOK       = "ok"
	catalogError    = "error"
)

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// homeInput captures the request path; the root pattern of the mux matches every path.
type homeInput struct {
	path string
}

func (i *homeInput) Resolve(ctx huma.Context) []error {
	i.path = ctx.URL().Path
	return nil
}

type regionInput struct {
	Q     string `query:"q" doc:"Address or district name, e.g. 서울특별시 종로구"`
	Query string `query:"query" doc:"Alias of q"`
	Page  int    `query:"page" doc:"Upstream page number"`
	Rows  int    `query:"rows" doc:"Rows per upstream page, at most 1000"`
	Key   string `query:"key" doc:"Service key overriding PUBLICDATA_KEY"`
	Scan  bool   `query:"scan" doc:"Keep only rows containing every query token and sweep the provinces when nothing matches"`
}

type regionResponse struct {
	Body []region.Result
}

type pnuInput struct {
	Q     string `query:"q" doc:"Address or district name"`
	Query string `query:"query" doc:"Alias of q"`
	Lot   string `query:"lot" doc:"Lot number, e.g. 2-14 or 산 176-18"`
	First bool   `query:"first" doc:"Use the lowest code when several districts match"`
	Key   string `query:"key" doc:"Service key overriding PUBLICDATA_KEY"`
	Scan  bool   `query:"scan" default:"true" doc:"Sweep the provinces when the direct lookup finds nothing"`
}

type pnuResponse struct {
	Body struct {
		PNU        string `json:"pnu"`
		RegionCode string `json:"region_cd"`
		Name       string `json:"name,omitempty"`
		Lot        string `json:"lot"`
	}
}

type convertInput struct {
	Query string `query:"query" doc:"District name, e.g. 서초구 양재동"`
	Q     string `query:"q" doc:"Alias of query"`
}

type convertResponse struct {
	Body struct {
		OK         bool     `json:"ok"`
		PNU10      string   `json:"pnu10,omitempty"`
		Matched    string   `json:"matched,omitempty"`
		Error      string   `json:"error,omitempty"`
		Candidates []string `json:"candidates,omitempty"`
	}
}

type healthResponse struct {
	Status int
	Body   struct {
		OK        bool    `json:"ok"`
		Time      string  `json:"time"`
		HasKey    bool    `json:"has_key"`
		Commit    *string `json:"commit"`
		Catalog   string  `json:"catalog"`
		Districts int64   `json:"districts,omitempty"`
	}
}

type versionResponse struct {
	Body version.Info
}

func (s *Server) registerHomeRoute() {
	huma.Get(s.api, "/", s.homeHandler, htmlOperation("Service overview", stdhttp.StatusNotFound, stdhttp.StatusInternalServerError))
}

func (s *Server) registerRegionRoute() {
	huma.Get(s.api, "/api/region", s.regionHandler, func(op *huma.Operation) {
		op.Summary = "Look up region codes"
		op.Errors = []int{stdhttp.StatusBadRequest, stdhttp.StatusBadGateway, stdhttp.StatusServiceUnavailable}
	})
}

func (s *Server) registerPNURoute() {
	huma.Get(s.api, "/api/pnu", s.pnuHandler, func(op *huma.Operation) {
		op.Summary = "Build a 19-digit parcel number"
		op.Errors = []int{
			stdhttp.StatusBadRequest,
			stdhttp.StatusNotFound,
			stdhttp.StatusConflict,
			stdhttp.StatusBadGateway,
			stdhttp.StatusServiceUnavailable,
		}
	})
}

func (s *Server) registerConvertRoute() {
	huma.Get(s.api, "/api/convert", s.convertHandler, func(op *huma.Operation) {
		op.Summary = "Resolve a district name from the local catalog"
		op.Errors = []int{stdhttp.StatusBadRequest, stdhttp.StatusServiceUnavailable}
	})
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/api/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) registerVersionRoute() {
	huma.Get(s.api, "/api/version", s.versionHandler, func(op *huma.Operation) {
		op.Summary = "Build metadata"
	})
}

func (s *Server) homeHandler(ctx context.Context, input *homeInput) (*htmlResponse, error) {
	if input.path != "/" {
		if strings.HasPrefix(input.path, "/api/") {
			return nil, huma.Error404NotFound(fmt.Sprintf("no endpoint at %s", input.path))
		}
		return s.renderErrorResponse(ctx, stdhttp.StatusNotFound, "There is nothing at this address.")
	}

	data := templates.HomePageData{
		Title:       "regioncd",
		Description: "Looks up standard administrative region codes (region_cd) for Korean addresses and builds parcel numbers (PNU).",
		HasKey:      s.hasKey,
		Catalog:     s.catalogState(ctx),
		Version:     s.version.Version,
		Endpoints: []templates.EndpointView{
			{Method: "GET", Path: "/api/region", Example: "/api/region?q=서울특별시 종로구", Description: "Matching districts with their region codes."},
			{Method: "GET", Path: "/api/pnu", Example: "/api/pnu?q=서울특별시 강남구 개포동&lot=2-14", Description: "19-digit parcel number for a district and lot."},
			{Method: "GET", Path: "/api/convert", Example: "/api/convert?query=서초구 양재동", Description: "Ten-digit code from the local district catalog."},
			{Method: "GET", Path: "/api/healthz", Example: "/api/healthz", Description: "Liveness and configuration state."},
			{Method: "GET", Path: "/api/version", Example: "/api/version", Description: "Build metadata."},
		},
	}

	body, err := renderComponent(ctx, templates.HomePage(data))
	if err != nil {
		s.recordError(ctx, err, "rendering home page", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't render the overview page.")
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) regionHandler(ctx context.Context, input *regionInput) (*regionResponse, error) {
	query := firstNonEmpty(input.Q, input.Query)
	opts, err := s.lookupOptions(query, input.Page, input.Rows, input.Key)
	if err != nil {
		return nil, err
	}

	if input.Scan {
		resolution, err := s.regions.Resolve(ctx, query, region.ResolveOptions{LookupOptions: opts, Scan: true})
		if err != nil {
			return nil, s.lookupError(ctx, err, query)
		}
		return &regionResponse{Body: resolution.Results}, nil
	}

	results, err := s.regions.Lookup(ctx, query, opts)
	if err != nil {
		return nil, s.lookupError(ctx, err, query)
	}

	return &regionResponse{Body: results}, nil
}

func (s *Server) pnuHandler(ctx context.Context, input *pnuInput) (*pnuResponse, error) {
	query := firstNonEmpty(input.Q, input.Query)
	opts, err := s.lookupOptions(query, 1, 0, input.Key)
	if err != nil {
		return nil, err
	}

	lot, err := pnu.ParseLot(input.Lot)
	if err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("lot %q is not a valid lot number", input.Lot))
	}

	resolution, err := s.regions.Resolve(ctx, query, region.ResolveOptions{LookupOptions: opts, Scan: input.Scan})
	if err != nil {
		return nil, s.lookupError(ctx, err, query)
	}

	switch {
	case len(resolution.Codes) == 0:
		return nil, huma.Error404NotFound(fmt.Sprintf("no region code found for %q", resolution.Query))
	case len(resolution.Codes) > 1 && !input.First:
		details := make([]error, 0, len(resolution.Results))
		for _, result := range resolution.Results {
			details = append(details, &huma.ErrorDetail{Location: "query.q", Message: result.Name, Value: result.Code})
		}
		return nil, huma.Error409Conflict(fmt.Sprintf("%d region codes match %q; narrow the query or pass first=true", len(resolution.Codes), resolution.Query), details...)
	}

	code := resolution.First()
	number, err := pnu.Make(code, lot)
	if err != nil {
		s.recordError(ctx, err, "building pnu", logrus.Fields{"region_cd": code})
		return nil, huma.Error502BadGateway(fmt.Sprintf("registry returned an unusable region code %q", code))
	}

	resp := &pnuResponse{}
	resp.Body.PNU = number
	resp.Body.RegionCode = code
	resp.Body.Lot = lot.String()
	for _, result := range resolution.Results {
		if result.Code == code {
			resp.Body.Name = result.Name
			break
		}
	}

	return resp, nil
}

func (s *Server) convertHandler(ctx context.Context, input *convertInput) (*convertResponse, error) {
	if s.catalog == nil {
		return nil, huma.Error503ServiceUnavailable("district catalog is not configured")
	}

	query := firstNonEmpty(input.Query, input.Q)
	if query == "" {
		return nil, huma.Error400BadRequest("query required")
	}

	resp := &convertResponse{}
	match, err := s.catalog.Find(ctx, query)
	switch {
	case err == nil:
		resp.Body.OK = true
		resp.Body.PNU10 = match.Code
		resp.Body.Matched = match.Name
	case eris.Is(err, catalog.ErrAmbiguous):
		resp.Body.Error = catalog.ErrAmbiguous.Error()
		if match != nil {
			resp.Body.Candidates = match.Candidates
		}
	case eris.Is(err, catalog.ErrNotFound):
		resp.Body.Error = catalog.ErrNotFound.Error()
	case eris.Is(err, region.ErrEmptyQuery):
		return nil, huma.Error400BadRequest("query required")
	default:
		s.recordError(ctx, err, "catalog lookup failed", logrus.Fields{"query": query})
		return nil, huma.Error500InternalServerError("catalog lookup failed")
	}

	return resp, nil
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{Status: stdhttp.StatusOK}
	resp.Body.OK = true
	resp.Body.Time = s.now().UTC().Format(healthTimeFormat)
	resp.Body.HasKey = s.hasKey
	if s.version.Commit != "" {
		commit := s.version.Commit
		resp.Body.Commit = &commit
	}

	resp.Body.Catalog = catalogDisabled
	if s.catalog != nil {
		count, err := s.catalog.Count(ctx)
		if err != nil {
			s.recordError(ctx, err, "counting catalog districts", nil)
			resp.Body.Catalog = catalogError
		} else {
			resp.Body.Catalog = catalogOK
			resp.Body.Districts = count
		}
	}

	return resp, nil
}

func (s *Server) versionHandler(_ context.Context, _ *struct{}) (*versionResponse, error) {
	return &versionResponse{Body: s.version}, nil
}

// lookupOptions validates the shared lookup parameters.
func (s *Server) lookupOptions(query string, page, rows int, key string) (region.LookupOptions, error) {
	if region.NormalizeQuery(query) == "" {
		return region.LookupOptions{}, huma.Error400BadRequest("q required")
	}

	key = strings.TrimSpace(key)
	if key == "" && !s.hasKey {
		return region.LookupOptions{}, huma.Error400BadRequest("serviceKey required (env PUBLICDATA_KEY or ?key=...)")
	}

	if page < 0 {
		return region.LookupOptions{}, huma.Error400BadRequest("page must not be negative")
	}
	if rows < 0 || rows > maxRows {
		return region.LookupOptions{}, huma.Error400BadRequest(fmt.Sprintf("rows must be between 1 and %d", maxRows))
	}

	return region.LookupOptions{PageNo: page, Rows: rows, ServiceKey: key}, nil
}

// lookupError maps region service errors onto problem responses.
func (s *Server) lookupError(ctx context.Context, err error, query string) error {
	fields := logrus.Fields{"query": query}

	switch {
	case eris.Is(err, region.ErrEmptyQuery):
		return huma.Error400BadRequest("q required")
	case eris.Is(err, region.ErrMissingServiceKey):
		return huma.Error400BadRequest("serviceKey required (env PUBLICDATA_KEY or ?key=...)")
	case eris.Is(err, region.ErrMalformedResponse):
		s.recordError(ctx, err, "registry returned a malformed response", fields)
		return huma.Error502BadGateway("MalformedResponse: the region registry returned an unreadable response")
	case eris.Is(err, region.ErrUpstreamUnreachable):
		s.recordError(ctx, err, "registry unreachable", fields)
		return huma.Error503ServiceUnavailable("UpstreamUnreachable: the region registry could not be reached over https or http")
	case eris.Is(err, context.Canceled), eris.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("lookup cancelled")
	default:
		s.recordError(ctx, err, "region lookup failed", fields)
		return huma.Error500InternalServerError("region lookup failed")
	}
}

func (s *Server) catalogState(ctx context.Context) string {
	if s.catalog == nil {
		return catalogDisabled
	}
	count, err := s.catalog.Count(ctx)
	if err != nil {
		s.recordError(ctx, err, "counting catalog districts", nil)
		return catalogError
	}
	return fmt.Sprintf("%d districts", count)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func newHTMLResponse(status int, body []byte) *htmlResponse {
	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        body,
	}
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

func (s *Server) renderErrorResponse(ctx context.Context, status int, message string) (*htmlResponse, error) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	template := templates.ErrorPage(templates.ErrorPageData{
		Title:       label + " • regioncd",
		StatusLabel: label,
		Message:     message,
	})

	body, err := renderComponent(ctx, template)
	if err != nil {
		s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		fallback := []byte(fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>", label, message))
		return newHTMLResponse(status, fallback), nil
	}

	return newHTMLResponse(status, body), nil
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
