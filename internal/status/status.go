package status

import (
	"fmt"
	"math"
	"time"
)

// Category summarizes where a show is in its production lifecycle.
type Category string

const (
	CategoryScheduled     Category = "scheduled"
	CategoryInProduction  Category = "in_production"
	CategoryReturningSoon Category = "returning_soon"
	CategoryRenewed       Category = "renewed"
	CategoryUncertain     Category = "uncertain"
	CategoryOnHiatus      Category = "on_hiatus"
	CategoryEnded         Category = "ended"
	CategoryCanceled      Category = "canceled"
	CategoryLegacy        Category = "legacy"
)

// Categories is the closed set of classifier outputs.
var Categories = []Category{
	CategoryScheduled,
	CategoryInProduction,
	CategoryReturningSoon,
	CategoryRenewed,
	CategoryUncertain,
	CategoryOnHiatus,
	CategoryEnded,
	CategoryCanceled,
	CategoryLegacy,
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Terminal reports whether c marks the end of a series run that users are
// notified about.
func (c Category) Terminal() bool {
	return c == CategoryEnded || c == CategoryCanceled
}

// Confidence reflects how directly a category follows from structured
// metadata rather than from elapsed time.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Raw status strings reported by the metadata provider.
const (
	RawReturningSeries = "Returning Series"
	RawEnded           = "Ended"
	RawCanceled        = "Canceled"
	RawPlanned         = "Planned"
	RawInProduction    = "In Production"
	RawPilot           = "Pilot"
)

// Input is the slice of external metadata the classifier looks at.
type Input struct {
	RawStatus       string
	InProduction    bool
	LastAirDate     *time.Time
	NextEpisodeDate *time.Time
}

type Result struct {
	Category   Category
	Confidence Confidence
	Message    string
}

// Classify maps metadata to a category. Rules are evaluated in order and the
// first match wins.
func Classify(in Input, now time.Time) Result {
	if in.NextEpisodeDate != nil {
		return Result{CategoryScheduled, ConfidenceHigh,
			fmt.Sprintf("Next episode airs %s.", FormatDate(*in.NextEpisodeDate))}
	}

	switch in.RawStatus {
	case RawCanceled:
		if in.LastAirDate != nil {
			return Result{CategoryCanceled, ConfidenceHigh,
				fmt.Sprintf("Canceled. Last episode aired %s.", FormatDate(*in.LastAirDate))}
		}
		return Result{CategoryCanceled, ConfidenceHigh, "Show has been canceled."}
	case RawEnded:
		if in.LastAirDate == nil {
			return Result{CategoryEnded, ConfidenceHigh, "Series has concluded."}
		}
		if YearsSince(*in.LastAirDate, now) >= 10 {
			return legacy(*in.LastAirDate, now)
		}
		return Result{CategoryEnded, ConfidenceHigh,
			fmt.Sprintf("Series concluded. Final episode aired %s.", FormatDate(*in.LastAirDate))}
	case RawPlanned:
		return Result{CategoryRenewed, ConfidenceMedium, "Show has been renewed. Production has not started yet."}
	}

	if in.InProduction {
		return Result{CategoryInProduction, ConfidenceHigh, "Currently in production. Air date not announced."}
	}

	if in.RawStatus == RawReturningSeries {
		if in.LastAirDate == nil {
			return Result{CategoryUncertain, ConfidenceLow, "Marked as returning, but no air history is available."}
		}
		last := *in.LastAirDate
		years := YearsSince(last, now)
		switch {
		case years < 1:
			return Result{CategoryReturningSoon, ConfidenceMedium,
				fmt.Sprintf("Show is active. Last aired %s. New season expected.", FormatDate(last))}
		case years < 3:
			return Result{CategoryUncertain, ConfidenceLow,
				fmt.Sprintf("Marked as returning, but last aired %s (%d years ago).", FormatDate(last), years)}
		case years < 10:
			return Result{CategoryOnHiatus, ConfidenceMedium,
				fmt.Sprintf("On extended hiatus. Last aired %s (%d years ago).", FormatDate(last), years)}
		default:
			return legacy(last, now)
		}
	}

	return Result{CategoryUncertain, ConfidenceLow, "Status uncertain. No production news available."}
}

func legacy(last, now time.Time) Result {
	return Result{CategoryLegacy, ConfidenceHigh,
		fmt.Sprintf("Classic show. Last aired %s (%d years ago). No new episodes expected.",
			FormatDate(last), YearsSince(last, now))}
}

// YearsSince returns whole years between two calendar dates, computed as
// floor(days / 365.25). Times are truncated to their UTC date first; a date
// in the future yields a negative count.
func YearsSince(from, now time.Time) int {
	days := daysBetween(from, now)
	return int(math.Floor(float64(days) / 365.25))
}

func daysBetween(from, to time.Time) int {
	f := startOfDay(from)
	t := startOfDay(to)
	return int(t.Sub(f).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as "January 2, 2006".
func FormatDate(t time.Time) string {
	return t.UTC().Format("January 2, 2006")
}
