package region

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"regioncd/app/internal/registry"
)

// Result is a single matched district and its standard region code.
type Result struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"region_cd" yaml:"region_cd"`
}

// Provinces lists the top-level provinces and special cities visited by a full scan.
// Both the pre-reform and current names are kept because the registry still serves rows for each.
var Provinces = []string{
	"서울특별시",
	"부산광역시",
	"대구광역시",
	"인천광역시",
	"광주광역시",
	"대전광역시",
	"울산광역시",
	"세종특별자치시",
	"경기도",
	"강원특별자치도",
	"강원도",
	"충청북도",
	"충청남도",
	"전북특별자치도",
	"전라북도",
	"전라남도",
	"경상북도",
	"경상남도",
	"제주특별자치도",
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeQuery composes Hangul to NFC and collapses runs of whitespace.
func NormalizeQuery(query string) string {
	composed := norm.NFC.String(query)
	return strings.TrimSpace(whitespace.ReplaceAllString(composed, " "))
}

// Tokens splits a normalised query on whitespace.
func Tokens(query string) []string {
	return strings.Fields(NormalizeQuery(query))
}

func fromRecords(records []registry.Record) []Result {
	results := make([]Result, 0, len(records))
	for _, record := range records {
		results = append(results, Result{
			Name: record.DisplayName(),
			Code: record.RegionCode.String(),
		})
	}
	return results
}

// matchRecords keeps records whose names contain every query token.
func matchRecords(records []registry.Record, tokens []string) []Result {
	matched := make([]Result, 0)
	for _, record := range records {
		haystack := norm.NFC.String(record.SearchText())
		if !containsAll(haystack, tokens) {
			continue
		}
		matched = append(matched, Result{
			Name: record.DisplayName(),
			Code: record.RegionCode.String(),
		})
	}
	return matched
}

func containsAll(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}

// uniqueCodes returns the sorted, de-duplicated codes of the results.
func uniqueCodes(results []Result) []string {
	seen := make(map[string]struct{}, len(results))
	codes := make([]string, 0, len(results))
	for _, result := range results {
		if result.Code == "" {
			continue
		}
		if _, ok := seen[result.Code]; ok {
			continue
		}
		seen[result.Code] = struct{}{}
		codes = append(codes, result.Code)
	}
	sort.Strings(codes)
	return codes
}

// uniqueResults drops repeated codes, keeping the first occurrence, and orders by code.
func uniqueResults(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	unique := make([]Result, 0, len(results))
	for _, result := range results {
		if _, ok := seen[result.Code]; ok {
			continue
		}
		seen[result.Code] = struct{}{}
		unique = append(unique, result)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Code < unique[j].Code
	})
	return unique
}
