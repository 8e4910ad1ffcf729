package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1000000, "1,000,000"},
		{-1234567, "-1,234,567"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.in))
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("from", "")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDate("from", "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("to", "15/03/2024")
	assert.ErrorContains(t, err, "--to")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"510300.SH", "159915.SZ"}, splitList(" 510300.SH, ,159915.SZ "))
}

func TestShiftHHMM(t *testing.T) {
	tests := []struct {
		name    string
		hhmm    string
		shift   time.Duration
		want    string
		wantErr bool
	}{
		{name: "lead", hhmm: "16:30", shift: -30 * time.Minute, want: "16:00"},
		{name: "across hour", hhmm: "09:10", shift: -15 * time.Minute, want: "08:55"},
		{name: "previous day", hhmm: "00:10", shift: -30 * time.Minute, wantErr: true},
		{name: "bad input", hhmm: "4pm", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := shiftHHMM(tt.hhmm, tt.shift)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
