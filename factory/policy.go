/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts a JSON policy document into a leave.PolicyTable. HR can tune
  thresholds, allocations and approval chains without a code change; the
  server loads the document from POLICY_FILE at start-up.

OVERRIDE MODEL:
  The document does not have to be complete. Every row starts from the
  built-in leave.DefaultPolicies() entry for its type and only the fields
  present in the JSON replace the defaults. A threshold set to -1 is
  removed (no limit).

JSON SCHEMA:
  {
    "policies": [
      {
        "leave_type": "CASUAL",
        "counting": "working",
        "endpoints_must_be_working": true,
        "max_consecutive_days": 3,
        "min_notice_working_days": 1,
        "certificate_threshold_days": -1,
        "backdate_allowed_days": 2,
        "min_reason_length": 10,
        "min_service_years": 0,
        "chain": ["DEPT_HEAD", "HR_ADMIN"],
        "affects_balance": true,
        "annual_allocation": 12,
        "monthly_accrual": 0,
        "carry_forward_cap": -1,
        "pay_bands": {"full_pay_until_day": 90, "half_pay_until_day": 180}
      }
    ]
  }

USAGE:
  f := factory.NewPolicyFactory()
  table, err := f.LoadFile(cfg.PolicyFile)
  engine := leave.NewEngine(store, store, store, leave.WithPolicies(table))

SEE ALSO:
  - leave/policies.go: Policy type and the built-in table
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyTableJSON is the JSON representation of a policy document.
type PolicyTableJSON struct {
	Policies []PolicyJSON `json:"policies"`
}

// PolicyJSON is one row. Nil fields keep the default.
type PolicyJSON struct {
	LeaveType              string        `json:"leave_type"`
	Counting               *string       `json:"counting,omitempty"` // calendar, working
	EndpointsMustBeWorking *bool         `json:"endpoints_must_be_working,omitempty"`
	MaxConsecutiveDays     *int          `json:"max_consecutive_days,omitempty"`
	MinNoticeWorkingDays   *int          `json:"min_notice_working_days,omitempty"`
	CertificateThreshold   *int          `json:"certificate_threshold_days,omitempty"`
	FitnessCertThreshold   *int          `json:"fitness_certificate_threshold_days,omitempty"`
	BackdateAllowedDays    *int          `json:"backdate_allowed_days,omitempty"`
	IncidentWindowDays     *int          `json:"incident_window_days,omitempty"`
	MinReasonLength        *int          `json:"min_reason_length,omitempty"`
	MinServiceYears        *int          `json:"min_service_years,omitempty"`
	Chain                  []string      `json:"chain,omitempty"`
	AffectsBalance         *bool         `json:"affects_balance,omitempty"`
	AnnualAllocation       *int          `json:"annual_allocation,omitempty"`
	MonthlyAccrual         *int          `json:"monthly_accrual,omitempty"`
	CarryForwardCap        *int          `json:"carry_forward_cap,omitempty"`
	PayBands               *PayBandsJSON `json:"pay_bands,omitempty"`
}

// PayBandsJSON represents the disability pay split.
type PayBandsJSON struct {
	FullPayUntilDay int `json:"full_pay_until_day"`
	HalfPayUntilDay int `json:"half_pay_until_day"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policy documents to a leave.PolicyTable.
type PolicyFactory struct {
	base leave.PolicyTable
}

// NewPolicyFactory creates a factory that overlays onto the built-in table.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{base: leave.DefaultPolicies()}
}

// LoadFile reads and parses a policy document. An empty path returns the
// built-in table.
func (f *PolicyFactory) LoadFile(path string) (leave.PolicyTable, error) {
	if path == "" {
		return f.base.Clone(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParsePolicyTable(string(raw))
}

// ParsePolicyTable parses a JSON string into a PolicyTable.
func (f *PolicyFactory) ParsePolicyTable(jsonStr string) (leave.PolicyTable, error) {
	var doc PolicyTableJSON
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(doc)
}

// FromJSON applies every row of doc to a copy of the base table.
func (f *PolicyFactory) FromJSON(doc PolicyTableJSON) (leave.PolicyTable, error) {
	table := f.base.Clone()
	seen := make(map[leave.LeaveType]bool, len(doc.Policies))

	for i, pj := range doc.Policies {
		lt, err := leave.ParseLeaveType(pj.LeaveType)
		if err != nil {
			return nil, fmt.Errorf("policies[%d]: %w", i, err)
		}
		if seen[lt] {
			return nil, fmt.Errorf("policies[%d]: %s defined twice", i, lt)
		}
		seen[lt] = true

		p, err := applyOverrides(table[lt], pj)
		if err != nil {
			return nil, fmt.Errorf("policies[%d] (%s): %w", i, lt, err)
		}
		p.LeaveType = lt
		table[lt] = p
	}
	return table, nil
}

func applyOverrides(p leave.Policy, pj PolicyJSON) (leave.Policy, error) {
	if pj.Counting != nil {
		switch rule := leave.CountingRule(*pj.Counting); rule {
		case leave.CountCalendarDays, leave.CountWorkingDays:
			p.Counting = rule
		default:
			return p, fmt.Errorf("unknown counting rule %q", *pj.Counting)
		}
	}
	if pj.EndpointsMustBeWorking != nil {
		p.EndpointsMustBeWorking = *pj.EndpointsMustBeWorking
	}
	if pj.AffectsBalance != nil {
		p.AffectsBalance = *pj.AffectsBalance
	}

	thresholds := []struct {
		name string
		src  *int
		dst  **int
	}{
		{"max_consecutive_days", pj.MaxConsecutiveDays, &p.MaxConsecutiveDays},
		{"min_notice_working_days", pj.MinNoticeWorkingDays, &p.MinNoticeWorkingDays},
		{"certificate_threshold_days", pj.CertificateThreshold, &p.CertificateThresholdDays},
		{"fitness_certificate_threshold_days", pj.FitnessCertThreshold, &p.FitnessCertThresholdDays},
		{"backdate_allowed_days", pj.BackdateAllowedDays, &p.BackdateAllowedDays},
		{"incident_window_days", pj.IncidentWindowDays, &p.IncidentWindowDays},
		{"carry_forward_cap", pj.CarryForwardCap, &p.CarryForwardCap},
	}
	for _, th := range thresholds {
		if err := setThreshold(th.name, th.src, th.dst); err != nil {
			return p, err
		}
	}

	counts := []struct {
		name string
		src  *int
		dst  *int
	}{
		{"min_reason_length", pj.MinReasonLength, &p.MinReasonLength},
		{"min_service_years", pj.MinServiceYears, &p.MinServiceYears},
		{"annual_allocation", pj.AnnualAllocation, &p.AnnualAllocation},
		{"monthly_accrual", pj.MonthlyAccrual, &p.MonthlyAccrual},
	}
	for _, c := range counts {
		if c.src == nil {
			continue
		}
		if *c.src < 0 {
			return p, fmt.Errorf("%s must not be negative", c.name)
		}
		*c.dst = *c.src
	}

	if pj.Chain != nil {
		chain, err := parseChain(pj.Chain)
		if err != nil {
			return p, err
		}
		p.Chain = chain
	}

	if pj.PayBands != nil {
		pb := pj.PayBands
		if pb.FullPayUntilDay < 0 || pb.HalfPayUntilDay < pb.FullPayUntilDay {
			return p, fmt.Errorf("pay_bands: need 0 <= full_pay_until_day <= half_pay_until_day")
		}
		p.PayBands = &leave.PayBandRule{FullPayUntilDay: pb.FullPayUntilDay, HalfPayUntilDay: pb.HalfPayUntilDay}
	}
	return p, nil
}

// setThreshold copies src into dst. -1 clears the threshold.
func setThreshold(name string, src *int, dst **int) error {
	switch {
	case src == nil:
	case *src == -1:
		*dst = nil
	case *src < 0:
		return fmt.Errorf("%s must be -1 or non-negative", name)
	default:
		v := *src
		*dst = &v
	}
	return nil
}

func parseChain(raw []string) ([]leave.Role, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("chain must name at least one role")
	}
	chain := make([]leave.Role, 0, len(raw))
	for _, s := range raw {
		r, err := leave.ParseRole(s)
		if err != nil {
			return nil, fmt.Errorf("chain: %w", err)
		}
		if r == leave.RoleEmployee {
			return nil, fmt.Errorf("chain: %s cannot approve leave", r)
		}
		chain = append(chain, r)
	}
	return chain, nil
}

// =============================================================================
// EXPORT
// =============================================================================

// ToJSON renders a table in document form, rows in leave.AllLeaveTypes
// order. Absent thresholds are written as -1 so the output reloads to the
// same table.
func ToJSON(table leave.PolicyTable) PolicyTableJSON {
	doc := PolicyTableJSON{Policies: make([]PolicyJSON, 0, len(table))}
	for _, lt := range leave.AllLeaveTypes {
		p, ok := table[lt]
		if !ok {
			continue
		}
		counting := string(p.Counting)
		chain := make([]string, len(p.Chain))
		for i, r := range p.Chain {
			chain[i] = string(r)
		}
		pj := PolicyJSON{
			LeaveType:              string(lt),
			Counting:               &counting,
			EndpointsMustBeWorking: &p.EndpointsMustBeWorking,
			MaxConsecutiveDays:     threshold(p.MaxConsecutiveDays),
			MinNoticeWorkingDays:   threshold(p.MinNoticeWorkingDays),
			CertificateThreshold:   threshold(p.CertificateThresholdDays),
			FitnessCertThreshold:   threshold(p.FitnessCertThresholdDays),
			BackdateAllowedDays:    threshold(p.BackdateAllowedDays),
			IncidentWindowDays:     threshold(p.IncidentWindowDays),
			MinReasonLength:        &p.MinReasonLength,
			MinServiceYears:        &p.MinServiceYears,
			Chain:                  chain,
			AffectsBalance:         &p.AffectsBalance,
			AnnualAllocation:       &p.AnnualAllocation,
			MonthlyAccrual:         &p.MonthlyAccrual,
			CarryForwardCap:        threshold(p.CarryForwardCap),
		}
		if p.PayBands != nil {
			pj.PayBands = &PayBandsJSON{
				FullPayUntilDay: p.PayBands.FullPayUntilDay,
				HalfPayUntilDay: p.PayBands.HalfPayUntilDay,
			}
		}
		doc.Policies = append(doc.Policies, pj)
	}
	return doc
}

func threshold(v *int) *int {
	out := -1
	if v != nil {
		out = *v
	}
	return &out
}
