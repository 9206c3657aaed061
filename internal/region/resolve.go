package region

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"regioncd/app/internal/registry"
)

const (
	phaseDirect = "direct"
	phaseScan   = "scan"
)

// ResolveOptions controls Resolve.
type ResolveOptions struct {
	LookupOptions
	// Scan enables the province sweep when the direct lookup yields no codes.
	Scan bool
	// Prefixes overrides Provinces for the sweep.
	Prefixes []string
}

// Diagnostics explains how a resolution was reached.
type Diagnostics struct {
	Query       string          `json:"query"`
	Phase       string          `json:"phase,omitempty"`
	Scheme      string          `json:"scheme,omitempty"`
	TotalCount  int             `json:"totalCount,omitempty"`
	ResultCode  string          `json:"resultCode,omitempty"`
	ResultMsg   string          `json:"resultMsg,omitempty"`
	DirectError string          `json:"direct_error,omitempty"`
	Scanned     []PrefixOutcome `json:"scanned,omitempty"`
	ScanErrors  []PrefixOutcome `json:"scan_errors,omitempty"`
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Query       string
	Codes       []string
	Results     []Result
	Diagnostics Diagnostics
}

// Resolve finds the codes whose names contain every token of the query.
// It tries the query directly first and, when that yields nothing and scanning is enabled,
// sweeps the provinces in order, stopping at the first province with matches.
// The resolution is returned alongside lookup errors so callers can still report diagnostics.
func (s *service) Resolve(ctx context.Context, query string, opts ResolveOptions) (*Resolution, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	tokens := Tokens(normalized)
	resolution := &Resolution{
		Query:       normalized,
		Codes:       []string{},
		Results:     []Result{},
		Diagnostics: Diagnostics{Query: normalized, Phase: phaseDirect},
	}

	page, directErr := s.lookupPage(ctx, normalized, opts.LookupOptions)
	switch {
	case directErr == nil:
		resolution.Diagnostics.Scheme = page.Scheme
		resolution.Diagnostics.TotalCount = int(page.Head.TotalCount)
		if page.Head.Result != nil {
			resolution.Diagnostics.ResultCode = page.Head.Result.Code
			resolution.Diagnostics.ResultMsg = page.Head.Result.Message
		}
		if matched := matchRecords(page.Records, tokens); len(matched) > 0 {
			resolution.fill(matched)
			return resolution, nil
		}
	case eris.Is(directErr, ErrMissingServiceKey):
		return nil, directErr
	default:
		resolution.Diagnostics.DirectError = directErr.Error()
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"query": normalized, "error": directErr.Error()}).Warn("direct region lookup failed")
		}
	}

	if !opts.Scan {
		if directErr != nil {
			return resolution, directErr
		}
		return resolution, nil
	}

	prefixes := opts.Prefixes
	if len(prefixes) == 0 {
		prefixes = Provinces
	}

	resolution.Diagnostics.Phase = phaseScan
	found := make([]Result, 0)
	report, scanErr := s.scan(ctx, prefixes, opts.LookupOptions, func(page *registry.Page) bool {
		found = append(found, matchRecords(page.Records, tokens)...)
		return len(found) > 0
	})
	if report != nil {
		resolution.Diagnostics.Scanned = report.Visited
		resolution.Diagnostics.ScanErrors = report.Failures
	}

	if len(found) > 0 {
		resolution.fill(found)
		return resolution, nil
	}

	switch {
	case scanErr != nil && directErr != nil:
		return resolution, directErr
	case scanErr != nil:
		return resolution, scanErr
	default:
		return resolution, nil
	}
}

func (r *Resolution) fill(matched []Result) {
	r.Results = uniqueResults(matched)
	r.Codes = uniqueCodes(r.Results)
}

// First returns the lowest code, or an empty string when nothing matched.
func (r *Resolution) First() string {
	if r == nil || len(r.Codes) == 0 {
		return ""
	}
	return r.Codes[0]
}
