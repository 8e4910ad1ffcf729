package data

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/pkg/redis"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMemoryStore_BarAndPrevClose(t *testing.T) {
	s := NewMemoryStore()
	s.Add(
		Bar{Date: day("2024-01-03"), Instrument: "A", Open: 10, Close: 11, Volume: 100},
		Bar{Date: day("2024-01-02"), Instrument: "A", Open: 9, Close: 10, Volume: 100},
		Bar{Date: day("2024-01-04"), Instrument: "B", Open: 5, Close: 5, Volume: 100, Factor: 2},
	)

	b, ok := s.Bar("A", day("2024-01-03").Add(15*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 11.0, b.Close)
	assert.Equal(t, 1.0, b.Factor, "missing factor defaults to 1")

	prev, ok := s.PrevClose("A", day("2024-01-03"))
	require.True(t, ok)
	assert.Equal(t, 10.0, prev)

	_, ok = s.PrevClose("A", day("2024-01-02"))
	assert.False(t, ok)

	prev, ok = s.PrevClose("A", day("2024-01-10"))
	require.True(t, ok)
	assert.Equal(t, 11.0, prev)

	assert.Equal(t, []string{"A", "B"}, s.Instruments())
	assert.Equal(t, 3, s.Len())
}

func TestMemoryStore_Dates(t *testing.T) {
	s := NewMemoryStore()
	for _, d := range []string{"2024-01-05", "2024-01-02", "2024-01-03", "2024-01-04"} {
		s.Add(Bar{Date: day(d), Instrument: "A", Close: 1})
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"unbounded", time.Time{}, time.Time{}, 4},
		{"start only", day("2024-01-03"), time.Time{}, 3},
		{"end only", time.Time{}, day("2024-01-03"), 2},
		{"window", day("2024-01-03"), day("2024-01-04"), 2},
		{"empty", day("2024-02-01"), time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Dates(tt.start, tt.end)
			assert.Len(t, got, tt.want)
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i-1].Before(got[i]))
			}
		})
	}

	dates, closes := s.Closes("A")
	assert.Len(t, dates, 4)
	assert.Equal(t, day("2024-01-02"), dates[0])
	assert.Len(t, closes, 4)
}

func TestReadWriteBars(t *testing.T) {
	in := "date,instrument,open,close,volume\n2024-01-02,510300.SH,3.5,3.6,1000\n"
	bars, err := ReadBars(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "510300.SH", bars[0].Instrument)
	assert.Equal(t, 3.6, bars[0].High)
	assert.Equal(t, 3.5, bars[0].Low)
	assert.Equal(t, 1.0, bars[0].Factor)

	var buf bytes.Buffer
	require.NoError(t, WriteBars(&buf, bars))
	again, err := ReadBars(&buf)
	require.NoError(t, err)
	assert.Equal(t, bars, again)
}

func TestReadBars_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing column", "date,instrument,open\n"},
		{"bad date", "date,instrument,open,close\n2024/01/02,A,1,1\n"},
		{"bad number", "date,instrument,open,close\n2024-01-02,A,x,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBars(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestReadPredictions(t *testing.T) {
	in := "date,instrument,score\n2024-01-02,A,0.5\n2024-01-02,B,\n2024-01-03,A,-0.1\n"
	preds, err := ReadPredictions(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, preds, 2, "empty scores are skipped")
	assert.Equal(t, -0.1, preds[1].Score)
}

func TestSignalCache_Disabled(t *testing.T) {
	c := NewSignalCache(redis.Disabled())
	ctx := context.Background()

	_, ok, err := c.Latest(ctx, "etf_topk")
	require.NoError(t, err)
	assert.False(t, ok)
}
