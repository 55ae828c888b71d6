package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/leave"
)

func TestComputePayBands(t *testing.T) {
	start := march(10)

	cases := []struct {
		name    string
		elapsed int
		total   int
		want    leave.PayBands
	}{
		{"same day as incident", 0, 40, leave.PayBands{FullPayDays: 40}},
		{"straddles full pay boundary", 60, 40, leave.PayBands{FullPayDays: 30, HalfPayDays: 10}},
		{"full pay window already gone", 91, 40, leave.PayBands{HalfPayDays: 40}},
		{"runs into unpaid", 150, 60, leave.PayBands{HalfPayDays: 30, UnpaidDays: 30}},
		{"all three bands", 0, 200, leave.PayBands{FullPayDays: 90, HalfPayDays: 90, UnpaidDays: 20}},
		{"past both windows", 200, 10, leave.PayBands{UnpaidDays: 10}},
		{"nothing to split", 0, 0, leave.PayBands{}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := leave.ComputePayBands(start.AddDays(-tc.elapsed), start, tc.total)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.total, got.FullPayDays+got.HalfPayDays+got.UnpaidDays)
			assert.GreaterOrEqual(t, got.FullPayDays, 0)
		})
	}
}

func TestComputePayBands_IncidentAfterStart(t *testing.T) {
	// An incident after the start is treated as zero days elapsed.
	got := leave.ComputePayBands(march(12), march(10), 5)
	assert.Equal(t, leave.PayBands{FullPayDays: 5}, got)
}
