// Package pnu builds 19-digit parcel numbers from a region code and a lot number.
package pnu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"
)

const (
	regionCodeLength = 10
	maxLotNumber     = 9999
	mountainPrefix   = "산"
)

var (
	// ErrInvalidLot is returned when a lot number cannot be parsed.
	ErrInvalidLot = eris.New("invalid lot number")
	// ErrInvalidRegionCode is returned when the region code does not carry exactly ten digits.
	ErrInvalidRegionCode = eris.New("invalid region code")
)

var lotPattern = regexp.MustCompile(`^(\d+)(?:\s*-\s*(\d+))?$`)

// Lot is a parsed land lot number such as "산 176-18".
type Lot struct {
	Mountain bool `json:"mountain"`
	Main     int  `json:"main"`
	Sub      int  `json:"sub"`
}

// String renders the lot the way it is usually written.
func (l Lot) String() string {
	var b strings.Builder
	if l.Mountain {
		b.WriteString(mountainPrefix)
		b.WriteByte(' ')
	}
	b.WriteString(strconv.Itoa(l.Main))
	if l.Sub > 0 {
		fmt.Fprintf(&b, "-%d", l.Sub)
	}
	return b.String()
}

// ParseLot parses "N", "N-M" and their mountain forms. Full-width digits and hyphens are accepted.
func ParseLot(raw string) (Lot, error) {
	folded := strings.TrimSpace(width.Fold.String(raw))
	folded = strings.NewReplacer("‐", "-", "−", "-", "–", "-").Replace(folded)

	var lot Lot
	if rest, ok := strings.CutPrefix(folded, mountainPrefix); ok {
		lot.Mountain = true
		folded = strings.TrimSpace(rest)
	}

	match := lotPattern.FindStringSubmatch(folded)
	if match == nil {
		return Lot{}, eris.Wrapf(ErrInvalidLot, "cannot parse %q", raw)
	}

	mainNumber, err := strconv.Atoi(match[1])
	if err != nil || mainNumber < 1 || mainNumber > maxLotNumber {
		return Lot{}, eris.Wrapf(ErrInvalidLot, "main number out of range in %q", raw)
	}
	lot.Main = mainNumber

	if match[2] != "" {
		sub, err := strconv.Atoi(match[2])
		if err != nil || sub > maxLotNumber {
			return Lot{}, eris.Wrapf(ErrInvalidLot, "sub number out of range in %q", raw)
		}
		lot.Sub = sub
	}

	return lot, nil
}

// Make joins a ten-digit region code and a lot into a parcel number.
// Non-digit characters in the region code are ignored.
func Make(regionCode string, lot Lot) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, regionCode)
	if len(digits) != regionCodeLength {
		return "", eris.Wrapf(ErrInvalidRegionCode, "expected %d digits, got %q", regionCodeLength, regionCode)
	}

	if lot.Main < 1 || lot.Main > maxLotNumber || lot.Sub < 0 || lot.Sub > maxLotNumber {
		return "", eris.Wrapf(ErrInvalidLot, "lot %s out of range", lot)
	}

	kind := 0
	if lot.Mountain {
		kind = 1
	}

	return fmt.Sprintf("%s%d%04d%04d", digits, kind, lot.Main, lot.Sub), nil
}
