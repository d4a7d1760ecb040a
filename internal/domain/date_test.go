package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		date  Date
		valid bool
	}{
		{"2024-06-01", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-13-40", false},
		{"2024-6-1", false},
		{"", false},
		{"2024-06-01T00:00:00Z", false},
	}

	for _, c := range cases {
		err := c.date.Validate()
		if c.valid {
			assert.NoError(t, err, c.date)
		} else {
			assert.ErrorIs(t, err, ErrInvalidDate, c.date)
		}
	}
}

func TestDateOfUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 本地时间 6 月 1 日 00:30，对应 UTC 还是 5 月 31 日
	ts := time.Date(2024, 6, 1, 0, 30, 0, 0, loc)

	assert.Equal(t, Date("2024-06-01"), DateOf(ts))
	assert.Equal(t, Date("2024-05-31"), DateOf(ts.UTC()))
}

func TestMonthDates(t *testing.T) {
	m, err := ParseMonth("2024-02")
	require.NoError(t, err)

	dates := m.Dates()
	require.Len(t, dates, 29)
	assert.Equal(t, Date("2024-02-01"), dates[0])
	assert.Equal(t, Date("2024-02-29"), dates[28])

	assert.True(t, m.Contains("2024-02-15"))
	assert.False(t, m.Contains("2024-03-01"))
	assert.Equal(t, "2024-03", m.Next().String())
	assert.Equal(t, "2024-01", m.Prev().String())
}

func TestParseMonthRejectsMalformed(t *testing.T) {
	for _, s := range []string{"2024-13", "2024-1", "202406", "abc"} {
		_, err := ParseMonth(s)
		assert.ErrorIs(t, err, ErrInvalidMonth, s)
	}
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("all")
	require.NoError(t, err)
	assert.True(t, s.All)
	assert.Equal(t, "all", s.String())

	s, err = ParseScope("42")
	require.NoError(t, err)
	assert.Equal(t, ScopeSelf(42), s)
	assert.Equal(t, "42", s.String())

	_, err = ParseScope("-1")
	assert.Error(t, err)
	_, err = ParseScope("me")
	assert.Error(t, err)
}

func TestKeyLess(t *testing.T) {
	a := Key{EmployeeID: 1, Date: "2024-06-02"}
	b := Key{EmployeeID: 1, Date: "2024-06-10"}
	c := Key{EmployeeID: 2, Date: "2024-06-01"}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.False(t, a.Less(a))
}
