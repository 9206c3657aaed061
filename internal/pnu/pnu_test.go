package pnu

import (
	"testing"

	"github.com/rotisserie/eris"
)

func TestParseLot(t *testing.T) {
	t.Parallel()

	cases := map[string]Lot{
		"2-14":      {Main: 2, Sub: 14},
		"2":         {Main: 2},
		"산 176-18":  {Mountain: true, Main: 176, Sub: 18},
		"산176-18":   {Mountain: true, Main: 176, Sub: 18},
		"176-0":     {Main: 176},
		"  12 - 3 ": {Main: 12, Sub: 3},
		"１７６－１８":    {Main: 176, Sub: 18},
	}

	for raw, expected := range cases {
		lot, err := ParseLot(raw)
		if err != nil {
			t.Fatalf("ParseLot(%q) returned error: %v", raw, err)
		}
		if lot != expected {
			t.Fatalf("ParseLot(%q) expected %+v, got %+v", raw, expected, lot)
		}
	}
}

func TestParseLotRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "산", "abc", "1-2-3", "0", "10000", "5-10000", "-3"} {
		if _, err := ParseLot(raw); !eris.Is(err, ErrInvalidLot) {
			t.Fatalf("ParseLot(%q) expected ErrInvalidLot, got %v", raw, err)
		}
	}
}

func TestMake(t *testing.T) {
	t.Parallel()

	got, err := Make("1168010300", Lot{Main: 2, Sub: 14})
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	if got != "1168010300000020014" {
		t.Fatalf("unexpected pnu %q", got)
	}

	got, err = Make("11-680-10300", Lot{Mountain: true, Main: 176, Sub: 18})
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	if got != "1168010300101760018" || len(got) != 19 {
		t.Fatalf("unexpected mountain pnu %q", got)
	}
}

func TestMakeRejectsShortRegionCode(t *testing.T) {
	t.Parallel()

	if _, err := Make("11680", Lot{Main: 1}); !eris.Is(err, ErrInvalidRegionCode) {
		t.Fatalf("expected ErrInvalidRegionCode, got %v", err)
	}
}

func TestMakeRejectsOutOfRangeLot(t *testing.T) {
	t.Parallel()

	if _, err := Make("1168010300", Lot{}); !eris.Is(err, ErrInvalidLot) {
		t.Fatalf("expected ErrInvalidLot, got %v", err)
	}
}

func TestLotString(t *testing.T) {
	t.Parallel()

	if got := (Lot{Mountain: true, Main: 176, Sub: 18}).String(); got != "산 176-18" {
		t.Fatalf("unexpected lot string %q", got)
	}
	if got := (Lot{Main: 2}).String(); got != "2" {
		t.Fatalf("unexpected lot string %q", got)
	}
}
