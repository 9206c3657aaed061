package region

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"regioncd/app/internal/registry"
)

// PrefixOutcome records what happened for one prefix of a scan.
type PrefixOutcome struct {
	Prefix string `json:"prov"`
	Count  int    `json:"count"`
	Scheme string `json:"scheme,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScanReport summarises a scan. A failed prefix is skipped, never fatal on its own.
type ScanReport struct {
	Visited  []PrefixOutcome `json:"scanned"`
	Failures []PrefixOutcome `json:"scan_errors,omitempty"`
}

// Failed reports whether every visited prefix failed.
func (r *ScanReport) Failed() bool {
	return r != nil && len(r.Visited) > 0 && len(r.Failures) == len(r.Visited)
}

// ScanAll looks up each prefix in order and concatenates the results.
// Failing prefixes are recorded in the report and skipped; the scan only fails when every prefix fails.
func (s *service) ScanAll(ctx context.Context, prefixes []string, opts LookupOptions) ([]Result, *ScanReport, error) {
	results := make([]Result, 0)
	report, err := s.scan(ctx, prefixes, opts, func(page *registry.Page) bool {
		results = append(results, fromRecords(page.Records)...)
		return false
	})
	if err != nil {
		return nil, report, err
	}
	return results, report, nil
}

// scan visits prefixes sequentially and hands each page to visit; visit returns true to stop early.
func (s *service) scan(ctx context.Context, prefixes []string, opts LookupOptions, visit func(*registry.Page) bool) (*ScanReport, error) {
	report := &ScanReport{
		Visited:  make([]PrefixOutcome, 0, len(prefixes)),
		Failures: make([]PrefixOutcome, 0),
	}

	var lastErr error
	malformedOnly := true

	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "scan cancelled")
		}

		outcome := PrefixOutcome{Prefix: prefix}
		page, err := s.lookupPage(ctx, prefix, LookupOptions{
			PageNo:     1,
			Rows:       opts.Rows,
			ServiceKey: opts.ServiceKey,
		})
		if err != nil {
			if eris.Is(err, ErrMissingServiceKey) {
				return report, err
			}
			outcome.Error = err.Error()
			report.Visited = append(report.Visited, outcome)
			report.Failures = append(report.Failures, outcome)
			s.metrics.IncrementScanPrefix("error")
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"prefix": prefix, "error": err.Error()}).Warn("skipping scan prefix")
			}
			if !eris.Is(err, ErrMalformedResponse) {
				malformedOnly = false
			}
			lastErr = err
			continue
		}

		outcome.Count = len(page.Records)
		outcome.Scheme = page.Scheme
		report.Visited = append(report.Visited, outcome)
		s.metrics.IncrementScanPrefix("ok")

		if visit(page) {
			return report, nil
		}
	}

	if report.Failed() {
		kind := ErrUpstreamUnreachable
		if malformedOnly {
			kind = ErrMalformedResponse
		}
		err := eris.Wrapf(kind, "all %d scan prefixes failed, last error: %v", len(report.Failures), lastErr)
		s.recordError(logrus.Fields{"prefixes": len(prefixes)}, err, "region scan failed")
		return report, err
	}

	return report, nil
}
