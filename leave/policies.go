/*
policies.go - Per leave-type rule table

PURPOSE:
  One row per LeaveType holding every static rule the validator, router
  and ledger consult. The table is data: factory.ParsePolicyTable can
  override any row from JSON.

NULLABLE RULES:
  Pointer fields are nil when the rule does not apply to that type.
  CertificateThresholdDays = 0 means a certificate is always required.
  BackdateAllowedDays = nil means the start may not be in the past.

COUNTING:
  Every built-in type uses CountCalendarDays: every day of the range is
  charged, weekends and holidays included. CountWorkingDays (working days
  only) exists for policy files that opt into it.

SEE ALSO:
  - validate.go: Applies the table to a draft
  - routing.go: Resolves Chain against the requester's role
  - ledger.go: AnnualAllocation, MonthlyAccrual, CarryForwardCap
*/
package leave

import "fmt"

type CountingRule string

const (
	CountCalendarDays CountingRule = "calendar"
	CountWorkingDays  CountingRule = "working"
)

// PayBandRule splits disability leave by days elapsed since the incident.
type PayBandRule struct {
	FullPayUntilDay int `json:"full_pay_until_day"`
	HalfPayUntilDay int `json:"half_pay_until_day"`
}

// DefaultPayBands is full pay for days 0-90, half pay 91-180.
var DefaultPayBands = PayBandRule{FullPayUntilDay: 90, HalfPayUntilDay: 180}

type Policy struct {
	LeaveType              LeaveType
	Counting               CountingRule
	EndpointsMustBeWorking bool

	MaxConsecutiveDays       *int
	MinNoticeWorkingDays     *int
	CertificateThresholdDays *int
	FitnessCertThresholdDays *int
	BackdateAllowedDays      *int
	IncidentWindowDays       *int
	MinReasonLength          int
	MinServiceYears          int

	Chain []Role

	AffectsBalance   bool
	AnnualAllocation int
	MonthlyAccrual   int
	CarryForwardCap  *int

	PayBands *PayBandRule
}

// PolicyTable maps each leave type to its rules.
type PolicyTable map[LeaveType]Policy

// Get returns the row for t.
func (pt PolicyTable) Get(t LeaveType) (Policy, error) {
	p, ok := pt[t]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownLeaveType, t)
	}
	return p, nil
}

// Clone copies the table so callers can override rows safely.
func (pt PolicyTable) Clone() PolicyTable {
	out := make(PolicyTable, len(pt))
	for k, v := range pt {
		v.Chain = append([]Role(nil), v.Chain...)
		out[k] = v
	}
	return out
}

// Accruing returns the types that receive a monthly accrual.
func (pt PolicyTable) Accruing() []LeaveType {
	var out []LeaveType
	for _, t := range AllLeaveTypes {
		if p, ok := pt[t]; ok && p.MonthlyAccrual > 0 {
			out = append(out, t)
		}
	}
	return out
}

// CarryingForward returns the types with a carry-forward cap.
func (pt PolicyTable) CarryingForward() []LeaveType {
	var out []LeaveType
	for _, t := range AllLeaveTypes {
		if p, ok := pt[t]; ok && p.CarryForwardCap != nil {
			out = append(out, t)
		}
	}
	return out
}

func intPtr(n int) *int { return &n }

const minReasonLength = 10

var (
	chainStandard  = []Role{RoleDeptHead, RoleHRAdmin}
	chainHRHead    = []Role{RoleDeptHead, RoleHRAdmin, RoleHRHead}
	chainExecutive = []Role{RoleDeptHead, RoleHRAdmin, RoleHRHead, RoleCEO}
)

// DefaultPolicies returns the built-in table.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		Earned: {
			LeaveType:              Earned,
			Counting:               CountCalendarDays,
			EndpointsMustBeWorking: true,
			MaxConsecutiveDays:     intPtr(60),
			MinNoticeWorkingDays:   intPtr(5),
			MinReasonLength:        minReasonLength,
			Chain:                  chainStandard,
			AffectsBalance:         true,
			MonthlyAccrual:         2,
			CarryForwardCap:        intPtr(60),
		},
		Casual: {
			LeaveType:              Casual,
			Counting:               CountCalendarDays,
			EndpointsMustBeWorking: true,
			MaxConsecutiveDays:     intPtr(3),
			MinNoticeWorkingDays:   intPtr(1),
			MinReasonLength:        minReasonLength,
			Chain:                  chainStandard,
			AffectsBalance:         true,
			AnnualAllocation:       10,
		},
		Medical: {
			LeaveType:                Medical,
			Counting:                 CountCalendarDays,
			MaxConsecutiveDays:       intPtr(30),
			CertificateThresholdDays: intPtr(3),
			FitnessCertThresholdDays: intPtr(7),
			BackdateAllowedDays:      intPtr(30),
			MinReasonLength:          minReasonLength,
			Chain:                    chainStandard,
			AffectsBalance:           true,
			AnnualAllocation:         14,
		},
		Maternity: {
			LeaveType:                Maternity,
			Counting:                 CountCalendarDays,
			MaxConsecutiveDays:       intPtr(180),
			MinNoticeWorkingDays:     intPtr(10),
			CertificateThresholdDays: intPtr(0),
			MinReasonLength:          minReasonLength,
			Chain:                    chainHRHead,
			AffectsBalance:           true,
			AnnualAllocation:         180,
		},
		Paternity: {
			LeaveType:                Paternity,
			Counting:                 CountCalendarDays,
			MaxConsecutiveDays:       intPtr(10),
			MinNoticeWorkingDays:     intPtr(5),
			CertificateThresholdDays: intPtr(0),
			MinReasonLength:          minReasonLength,
			Chain:                    chainStandard,
			AffectsBalance:           true,
			AnnualAllocation:         10,
		},
		Study: {
			LeaveType:            Study,
			Counting:             CountCalendarDays,
			MaxConsecutiveDays:   intPtr(365),
			MinNoticeWorkingDays: intPtr(30),
			MinReasonLength:      minReasonLength,
			MinServiceYears:      3,
			Chain:                chainExecutive,
			AffectsBalance:       true,
			AnnualAllocation:     365,
		},
		SpecialDisability: {
			LeaveType:                SpecialDisability,
			Counting:                 CountCalendarDays,
			MaxConsecutiveDays:       intPtr(720),
			CertificateThresholdDays: intPtr(0),
			BackdateAllowedDays:      intPtr(90),
			IncidentWindowDays:       intPtr(90),
			MinReasonLength:          minReasonLength,
			Chain:                    chainHRHead,
			AffectsBalance:           true,
			AnnualAllocation:         720,
			PayBands:                 &PayBandRule{FullPayUntilDay: 90, HalfPayUntilDay: 180},
		},
		Quarantine: {
			LeaveType:                Quarantine,
			Counting:                 CountCalendarDays,
			MaxConsecutiveDays:       intPtr(30),
			CertificateThresholdDays: intPtr(0),
			BackdateAllowedDays:      intPtr(7),
			MinReasonLength:          minReasonLength,
			Chain:                    chainStandard,
			AffectsBalance:           true,
			AnnualAllocation:         30,
		},
		ExtraWithPay: {
			LeaveType:            ExtraWithPay,
			Counting:             CountCalendarDays,
			MaxConsecutiveDays:   intPtr(90),
			MinNoticeWorkingDays: intPtr(10),
			MinReasonLength:      minReasonLength,
			Chain:                chainExecutive,
			AffectsBalance:       true,
			AnnualAllocation:     90,
		},
		ExtraWithoutPay: {
			LeaveType:            ExtraWithoutPay,
			Counting:             CountCalendarDays,
			MaxConsecutiveDays:   intPtr(365),
			MinNoticeWorkingDays: intPtr(10),
			MinReasonLength:      minReasonLength,
			Chain:                chainExecutive,
			AffectsBalance:       false,
		},
	}
}
