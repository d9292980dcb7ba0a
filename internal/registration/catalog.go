package registration

import "time"

const (
	minimumAge      = 14
	birthYearSpan   = 100
	graduationSpan  = 91
	monthsPerYear   = 12
	maxDaysPerMonth = 31
)

// Catalog holds the selectable values for the birth date and graduation year inputs.
type Catalog struct {
	BirthYears      []int
	Months          []int
	Days            []int
	GraduationYears []int
}

// NewCatalog computes the option lists for the year of now. Days are not filtered per
// month; any combination the selects allow is accepted.
func NewCatalog(now time.Time) Catalog {
	year := now.Year()
	return Catalog{
		BirthYears:      descending(year-minimumAge, birthYearSpan),
		Months:          ascending(1, monthsPerYear),
		Days:            ascending(1, maxDaysPerMonth),
		GraduationYears: descending(year, graduationSpan),
	}
}

func descending(from, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = from - i
	}
	return out
}

func ascending(from, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = from + i
	}
	return out
}
