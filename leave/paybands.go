package leave

import "github.com/warp/leave-engine/calendar"

// PayBands splits a disability leave into pay tiers.
type PayBands struct {
	FullPayDays int `json:"full_pay_days"`
	HalfPayDays int `json:"half_pay_days"`
	UnpaidDays  int `json:"unpaid_days"`
}

// ComputePayBands applies the default 90/180-day rule.
func ComputePayBands(incident, start calendar.Date, totalDays int) PayBands {
	return DefaultPayBands.Compute(incident, start, totalDays)
}

// Compute splits totalDays of leave starting on start. Day N of the leave
// sits elapsed+N days after the incident, so the full-pay window shrinks
// by the days already elapsed and never goes negative.
func (r PayBandRule) Compute(incident, start calendar.Date, totalDays int) PayBands {
	if totalDays <= 0 {
		return PayBands{}
	}
	elapsed := calendar.DaysBetween(incident, start)
	if elapsed < 0 {
		elapsed = 0
	}
	fullEnd := clamp(r.FullPayUntilDay-elapsed, 0, totalDays)
	halfEnd := clamp(r.HalfPayUntilDay-elapsed, 0, totalDays)
	return PayBands{
		FullPayDays: fullEnd,
		HalfPayDays: halfEnd - fullEnd,
		UnpaidDays:  totalDays - halfEnd,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
