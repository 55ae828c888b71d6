package leave

import (
	"strings"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
)

// Draft is a candidate request as the employee typed it.
type Draft struct {
	EmployeeID            string
	LeaveType             LeaveType
	StartDate             calendar.Date
	EndDate               calendar.Date
	Reason                string
	IncidentDate          calendar.Date
	CertificateRef        string
	FitnessCertificateRef string
}

// Charge is the day count a draft would consume.
type Charge struct {
	Days      int
	Breakdown calendar.Breakdown
}

// Validate checks d against policy. It is pure: the balance, holidays and
// today are supplied by the caller and nothing is written. Every
// violation is reported, not just the first.
func Validate(policy Policy, d Draft, available generic.Amount, holidays calendar.HolidaySet, today calendar.Date) (Charge, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(d.EmployeeID) == "" {
		errs.add(MissingField, "employee_id", "employee is required")
	}
	if n := len([]rune(strings.TrimSpace(d.Reason))); n < policy.MinReasonLength {
		errs.add(MissingField, "reason", "reason must be at least %d characters", policy.MinReasonLength)
	}
	if d.StartDate.IsZero() {
		errs.add(MissingField, "start_date", "start date is required")
	}
	if d.EndDate.IsZero() {
		errs.add(MissingField, "end_date", "end date is required")
	}
	if d.StartDate.IsZero() || d.EndDate.IsZero() {
		return Charge{}, errs
	}

	breakdown, err := calendar.CountDaysBreakdown(d.StartDate, d.EndDate, holidays)
	if err != nil {
		errs.add(InvalidRange, "end_date", "end date %s is before start date %s", d.EndDate, d.StartDate)
		return Charge{}, errs
	}
	charge := Charge{Days: breakdown.Total, Breakdown: breakdown}
	if policy.Counting == CountWorkingDays {
		charge.Days = breakdown.WorkingCount
	}

	if policy.EndpointsMustBeWorking {
		if calendar.IsNonWorking(d.StartDate, holidays) {
			errs.add(EndpointOnNonWorkingDay, "start_date", "%s is a weekend or holiday", d.StartDate)
		}
		if !d.EndDate.Equal(d.StartDate) && calendar.IsNonWorking(d.EndDate, holidays) {
			errs.add(EndpointOnNonWorkingDay, "end_date", "%s is a weekend or holiday", d.EndDate)
		}
	}

	// Only reachable with the working-day counting rule.
	if charge.Days == 0 {
		errs.add(InvalidRange, "end_date", "range %s..%s contains no chargeable days", d.StartDate, d.EndDate)
		return charge, errs
	}

	if limit := policy.MaxConsecutiveDays; limit != nil && charge.Days > *limit {
		errs.add(ConsecutiveDaysExceeded, "end_date", "%d days requested, at most %d allowed", charge.Days, *limit)
	}

	if d.StartDate.Before(today) {
		back := calendar.DaysBetween(d.StartDate, today)
		if allowed := policy.BackdateAllowedDays; allowed == nil {
			errs.add(BackdateNotAllowed, "start_date", "%s leave cannot start in the past", policy.LeaveType)
		} else if back > *allowed {
			errs.add(BackdateNotAllowed, "start_date", "start is %d days in the past, at most %d allowed", back, *allowed)
		}
	} else if notice := policy.MinNoticeWorkingDays; notice != nil {
		if got := calendar.CountWorkingDaysBetween(today, d.StartDate, holidays); got < *notice {
			errs.add(InsufficientNotice, "start_date", "%d working days notice given, %d required", got, *notice)
		}
	}

	if t := policy.CertificateThresholdDays; t != nil && charge.Days > *t && strings.TrimSpace(d.CertificateRef) == "" {
		errs.add(CertificateRequired, "certificate_ref", "a certificate is required for more than %d days", *t)
	}
	if t := policy.FitnessCertThresholdDays; t != nil && charge.Days > *t && strings.TrimSpace(d.FitnessCertificateRef) == "" {
		errs.add(CertificateRequired, "fitness_certificate_ref", "a fitness certificate is required for more than %d days", *t)
	}

	if window := policy.IncidentWindowDays; window != nil {
		switch {
		case d.IncidentDate.IsZero():
			errs.add(MissingField, "incident_date", "incident date is required")
		case d.IncidentDate.After(d.StartDate):
			errs.add(IncidentDateOutOfWindow, "incident_date", "incident date %s is after start %s", d.IncidentDate, d.StartDate)
		case calendar.DaysBetween(d.IncidentDate, d.StartDate) > *window:
			errs.add(IncidentDateOutOfWindow, "incident_date", "incident is more than %d days before start", *window)
		}
	}

	if policy.AffectsBalance && available.LessThan(generic.Days(charge.Days)) {
		errs.add(InsufficientBalance, "leave_type", "%d days requested, %v available", charge.Days, available.Value)
	}

	return charge, errs
}
