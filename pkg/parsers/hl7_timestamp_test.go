package parsers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	cases := map[string]string{
		"20250502140000":        "2025-05-02T14:00:00Z",
		"202505021400":          "2025-05-02T14:00:00Z",
		"2025050214":            "2025-05-02T14:00:00Z",
		"20250502":              "2025-05-02T00:00:00Z",
		"20250502140000.1234":   "2025-05-02T14:00:00.123Z",
		"20250502140000.5":      "2025-05-02T14:00:00.500Z",
		"20250502140000-0500":   "2025-05-02T14:00:00-05:00",
		"20250502140000+0000":   "2025-05-02T14:00:00Z",
		"20250502140000-0000":   "2025-05-02T14:00:00Z",
		"202505021400+0530":     "2025-05-02T14:00:00+05:30",
		"20240229":              "2024-02-29T00:00:00Z",
		" 20250502140000 ":      "2025-05-02T14:00:00Z",
		"20250502235959.9-0800": "2025-05-02T23:59:59.900-08:00",
	}
	for in, want := range cases {
		got, err := NormalizeTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeTimestampRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"2025",
		"202505",
		"2025050",
		"20251301",
		"20250001",
		"20250230",
		"20230229",
		"20250431",
		"2025050224",
		"202505021460",
		"20250502140060",
		"2025050214000",
		"202505021400001",
		"20250502X",
		"2025-05-02",
		"20250502140000+05",
		"20250502140000+2400",
		"20250502140000+0560",
		"20250502.5",
		"20250502140000.",
		"20250502140000.5x",
	} {
		_, err := NormalizeTimestamp(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrTimestampFormat, in)
	}
}

func TestNormalizeDate(t *testing.T) {
	got, err := NormalizeDate("19850210")
	require.NoError(t, err)
	assert.Equal(t, "1985-02-10", got)

	got, err = NormalizeDate("19850210233000-0500")
	require.NoError(t, err)
	assert.Equal(t, "1985-02-10", got)
}

func TestNormalizeDateRejectsPartialDates(t *testing.T) {
	for _, in := range []string{"1985", "198502", "19850230"} {
		_, err := NormalizeDate(in)
		assert.ErrorIs(t, err, ErrTimestampFormat, in)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	for _, in := range []string{
		"20250502",
		"2025050214",
		"202505021415",
		"20250502141516",
		"20250502141516.789",
		"20250502141516.7-0330",
		"202512312359+1400",
	} {
		ts, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		back, err := time.Parse(time.RFC3339Nano, ts.String())
		require.NoError(t, err, in)
		assert.True(t, ts.Time.Equal(back), "%s: %s != %s", in, ts.Time, back)
	}
}

func TestParseTimestampPrecision(t *testing.T) {
	ts, err := ParseTimestamp("202505021415")
	require.NoError(t, err)
	assert.Equal(t, 5, ts.Precision)
	assert.Equal(t, -1, ts.Millis)
	assert.False(t, ts.HasOffset)

	ts, err = ParseTimestamp("20250502141516.25+0100")
	require.NoError(t, err)
	assert.Equal(t, 6, ts.Precision)
	assert.Equal(t, 250, ts.Millis)
	assert.True(t, ts.HasOffset)
	_, offset := ts.Time.Zone()
	assert.Equal(t, 3600, offset)
}
