package status

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Category
		conf Confidence
	}{
		{"next episode wins over ended", Input{RawStatus: RawEnded, NextEpisodeDate: date(2026, 4, 1)}, CategoryScheduled, ConfidenceHigh},
		{"next episode wins over in production", Input{RawStatus: RawReturningSeries, InProduction: true, NextEpisodeDate: date(2026, 4, 1)}, CategoryScheduled, ConfidenceHigh},
		{"canceled", Input{RawStatus: RawCanceled, LastAirDate: date(2024, 1, 1)}, CategoryCanceled, ConfidenceHigh},
		{"canceled wins over in production", Input{RawStatus: RawCanceled, InProduction: true}, CategoryCanceled, ConfidenceHigh},
		{"ended recently", Input{RawStatus: RawEnded, LastAirDate: date(2023, 5, 1)}, CategoryEnded, ConfidenceHigh},
		{"ended without air date", Input{RawStatus: RawEnded}, CategoryEnded, ConfidenceHigh},
		{"ended long ago is legacy", Input{RawStatus: RawEnded, LastAirDate: date(2001, 5, 1)}, CategoryLegacy, ConfidenceHigh},
		{"planned", Input{RawStatus: RawPlanned}, CategoryRenewed, ConfidenceMedium},
		{"planned wins over in production", Input{RawStatus: RawPlanned, InProduction: true}, CategoryRenewed, ConfidenceMedium},
		{"in production flag", Input{RawStatus: RawInProduction, InProduction: true}, CategoryInProduction, ConfidenceHigh},
		{"returning in production", Input{RawStatus: RawReturningSeries, InProduction: true, LastAirDate: date(2010, 1, 1)}, CategoryInProduction, ConfidenceHigh},
		{"returning without air date", Input{RawStatus: RawReturningSeries}, CategoryUncertain, ConfidenceLow},
		{"returning under a year", Input{RawStatus: RawReturningSeries, LastAirDate: date(2025, 9, 1)}, CategoryReturningSoon, ConfidenceMedium},
		{"returning two years", Input{RawStatus: RawReturningSeries, LastAirDate: date(2024, 1, 1)}, CategoryUncertain, ConfidenceLow},
		{"returning five years", Input{RawStatus: RawReturningSeries, LastAirDate: date(2021, 1, 1)}, CategoryOnHiatus, ConfidenceMedium},
		{"returning twelve years", Input{RawStatus: RawReturningSeries, LastAirDate: date(2014, 1, 1)}, CategoryLegacy, ConfidenceHigh},
		{"pilot falls back", Input{RawStatus: RawPilot}, CategoryUncertain, ConfidenceLow},
		{"empty falls back", Input{}, CategoryUncertain, ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in, now)
			if got.Category != tt.want {
				t.Errorf("category = %q, want %q", got.Category, tt.want)
			}
			if got.Confidence != tt.conf {
				t.Errorf("confidence = %q, want %q", got.Confidence, tt.conf)
			}
			if got.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestClassifyReturningSeriesBoundaries(t *testing.T) {
	// 365.25-day years: 366 days is one year, 1096 days is three, 3653 days is ten.
	tests := []struct {
		daysAgo int
		want    Category
	}{
		{0, CategoryReturningSoon},
		{365, CategoryReturningSoon},
		{366, CategoryUncertain},
		{1095, CategoryUncertain},
		{1096, CategoryOnHiatus},
		{3652, CategoryOnHiatus},
		{3653, CategoryLegacy},
	}

	for _, tt := range tests {
		last := now.AddDate(0, 0, -tt.daysAgo)
		got := Classify(Input{RawStatus: RawReturningSeries, LastAirDate: &last}, now)
		if got.Category != tt.want {
			t.Errorf("%d days ago: category = %q, want %q", tt.daysAgo, got.Category, tt.want)
		}
	}
}

func TestClassifyLegacyScenario(t *testing.T) {
	last := now.AddDate(-32, 0, 0)
	got := Classify(Input{RawStatus: RawReturningSeries, LastAirDate: &last}, now)
	if got.Category != CategoryLegacy {
		t.Errorf("category = %q, want %q", got.Category, CategoryLegacy)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %q, want %q", got.Confidence, ConfidenceHigh)
	}
}

func TestClassifyInProductionScenario(t *testing.T) {
	got := Classify(Input{RawStatus: RawReturningSeries, InProduction: true}, now)
	if got.Category != CategoryInProduction {
		t.Errorf("category = %q, want %q", got.Category, CategoryInProduction)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %q, want %q", got.Confidence, ConfidenceHigh)
	}
}

func TestClassifyScheduledMessageIncludesDate(t *testing.T) {
	got := Classify(Input{NextEpisodeDate: date(2026, 4, 1)}, now)
	want := "Next episode airs April 1, 2026."
	if got.Message != want {
		t.Errorf("message = %q, want %q", got.Message, want)
	}
}

func TestClassifyDeterministicAndClosed(t *testing.T) {
	statuses := []string{"", RawReturningSeries, RawEnded, RawCanceled, RawPlanned, RawInProduction, RawPilot, "Something Else"}
	lastDates := []*time.Time{nil, date(2026, 1, 1), date(2023, 1, 1), date(2018, 1, 1), date(1994, 1, 1), date(2027, 1, 1)}
	nextDates := []*time.Time{nil, date(2026, 4, 1)}

	for _, s := range statuses {
		for _, prod := range []bool{false, true} {
			for _, last := range lastDates {
				for _, next := range nextDates {
					in := Input{RawStatus: s, InProduction: prod, LastAirDate: last, NextEpisodeDate: next}
					first := Classify(in, now)
					second := Classify(in, now)
					if first != second {
						t.Fatalf("non-deterministic result for %+v: %+v vs %+v", in, first, second)
					}
					if !first.Category.Valid() {
						t.Fatalf("category %q outside the closed set for %+v", first.Category, in)
					}
				}
			}
		}
	}
}

func TestYearsSinceTruncatesToDate(t *testing.T) {
	from := time.Date(2016, 3, 15, 23, 59, 0, 0, time.UTC)
	to := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	if got := YearsSince(from, to); got != 9 {
		// 3652 days / 365.25 = 9.998
		t.Errorf("YearsSince = %d, want 9", got)
	}
	if got := YearsSince(to, from); got != -10 {
		t.Errorf("YearsSince(reversed) = %d, want -10", got)
	}
}

func TestTerminal(t *testing.T) {
	for _, c := range Categories {
		want := c == CategoryEnded || c == CategoryCanceled
		if c.Terminal() != want {
			t.Errorf("%q.Terminal() = %v, want %v", c, c.Terminal(), want)
		}
	}
}
