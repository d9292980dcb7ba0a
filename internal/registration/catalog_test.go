package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCatalogBoundsFor2024(t *testing.T) {
	catalog := NewCatalog(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	require.Len(t, catalog.BirthYears, 100)
	require.Equal(t, 2010, catalog.BirthYears[0])
	require.Equal(t, 1911, catalog.BirthYears[len(catalog.BirthYears)-1])

	require.Len(t, catalog.GraduationYears, 91)
	require.Equal(t, 2024, catalog.GraduationYears[0])
	require.Equal(t, 1934, catalog.GraduationYears[len(catalog.GraduationYears)-1])

	require.Len(t, catalog.Months, 12)
	require.Equal(t, 1, catalog.Months[0])
	require.Equal(t, 12, catalog.Months[11])

	require.Len(t, catalog.Days, 31)
	require.Equal(t, 1, catalog.Days[0])
	require.Equal(t, 31, catalog.Days[30])
}

func TestNewCatalogYearsDescend(t *testing.T) {
	catalog := NewCatalog(time.Date(2031, time.January, 1, 0, 0, 0, 0, time.UTC))
	for i := 1; i < len(catalog.BirthYears); i++ {
		require.Equal(t, catalog.BirthYears[i-1]-1, catalog.BirthYears[i])
	}
	for i := 1; i < len(catalog.GraduationYears); i++ {
		require.Equal(t, catalog.GraduationYears[i-1]-1, catalog.GraduationYears[i])
	}
}
