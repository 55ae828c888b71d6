/*
seed.go - Demo data loaders

PURPOSE:
  Populates an empty deployment with a directory and a holiday calendar so
  the API can be exercised straight away. Enabled with SEED_DEMO=true or
  via POST /api/scenarios/load.

AVAILABLE SCENARIOS:
  directory:   One employee per role, two rank-and-file employees
  holidays:    Fixed-date public holidays for the current and next year
  walkthrough: directory + holidays + one approved and one pending request

Loaders upsert, so loading twice is harmless. The walkthrough only files
its requests when the demo employee has none yet.

SEE ALSO:
  - handlers.go: ListScenarios, LoadScenario handlers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{ID: "directory", Name: "Directory", Description: "One employee per role plus two staff members"},
	{ID: "holidays", Name: "Public Holidays", Description: "Fixed-date public holidays for this year and next"},
	{ID: "walkthrough", Name: "Walkthrough", Description: "Directory, holidays, one approved and one pending request"},
}

// DemoEmployees is the directory loaded by the "directory" scenario.
var DemoEmployees = []leave.Employee{
	{ID: "emp-1001", Name: "Nadia Rahman", Role: leave.RoleEmployee, ServiceYears: 5},
	{ID: "emp-1002", Name: "Karim Hossain", Role: leave.RoleEmployee, ServiceYears: 1},
	{ID: "dh-2001", Name: "Farhan Ahmed", Role: leave.RoleDeptHead, ServiceYears: 8},
	{ID: "hr-3001", Name: "Rumana Akter", Role: leave.RoleHRAdmin, ServiceYears: 4},
	{ID: "hrh-4001", Name: "Tanvir Islam", Role: leave.RoleHRHead, ServiceYears: 10},
	{ID: "ceo-5001", Name: "Shirin Chowdhury", Role: leave.RoleCEO, ServiceYears: 15},
}

// PublicHolidays returns the fixed-date holidays of year.
func PublicHolidays(year int) []calendar.Holiday {
	return []calendar.Holiday{
		{Date: calendar.NewDate(year, time.February, 21), Name: "International Mother Language Day"},
		{Date: calendar.NewDate(year, time.March, 26), Name: "Independence Day"},
		{Date: calendar.NewDate(year, time.April, 14), Name: "Bengali New Year"},
		{Date: calendar.NewDate(year, time.May, 1), Name: "May Day"},
		{Date: calendar.NewDate(year, time.December, 16), Name: "Victory Day"},
		{Date: calendar.NewDate(year, time.December, 25), Name: "Christmas Day"},
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// Seed loads the named scenario.
func (h *Handler) Seed(ctx context.Context, scenario string) error {
	switch scenario {
	case "directory":
		return h.seedDirectory(ctx)
	case "holidays":
		return h.seedHolidays(ctx)
	case "walkthrough":
		if err := h.seedDirectory(ctx); err != nil {
			return err
		}
		if err := h.seedHolidays(ctx); err != nil {
			return err
		}
		return h.seedRequests(ctx)
	default:
		return fmt.Errorf("%w: %q", errUnknownScenario, scenario)
	}
}

func (h *Handler) seedDirectory(ctx context.Context) error {
	for _, e := range DemoEmployees {
		if err := h.Roster.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("seed employee %s: %w", e.ID, err)
		}
	}
	h.logger.Info("seeded directory", zap.Int("count", len(DemoEmployees)))
	return nil
}

func (h *Handler) seedHolidays(ctx context.Context) error {
	year := h.Today().Year()
	n := 0
	for _, y := range []int{year, year + 1} {
		for _, hol := range PublicHolidays(y) {
			if err := h.Calendar.AddHoliday(ctx, hol); err != nil {
				return fmt.Errorf("seed holiday %s: %w", hol.Date, err)
			}
			n++
		}
	}
	h.logger.Info("seeded holidays", zap.Int("count", n))
	return nil
}

// seedRequests files two CASUAL requests for emp-1001 a few weeks out: one
// walked to APPROVED, one left PENDING at the dept head.
func (h *Handler) seedRequests(ctx context.Context) error {
	const requester = "emp-1001"
	existing, err := h.Engine.ListByEmployee(ctx, requester)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	today := h.Today()
	start := today.AddDays(14)
	holidays, err := h.Calendar.Holidays(ctx, start, start.AddDays(30))
	if err != nil {
		return err
	}
	hs := calendar.NewHolidaySet(holidays...)
	start = calendar.NextWorkingDay(start, hs)
	second := calendar.NextWorkingDay(start.AddDays(2), hs)

	approved, err := h.fileDemo(ctx, requester, start, today)
	if err != nil {
		return err
	}
	approved, err = h.Engine.Decide(ctx, leave.DecideCommand{
		RequestID: approved.ID, ActorID: "dh-2001", ActorRole: leave.RoleDeptHead,
		Action: leave.ActionForward, ExpectedVersion: approved.Version,
	})
	if err != nil {
		return err
	}
	if _, err := h.Engine.Decide(ctx, leave.DecideCommand{
		RequestID: approved.ID, ActorID: "hr-3001", ActorRole: leave.RoleHRAdmin,
		Action: leave.ActionApprove, ExpectedVersion: approved.Version,
	}); err != nil {
		return err
	}

	_, err = h.fileDemo(ctx, requester, second, today)
	return err
}

func (h *Handler) fileDemo(ctx context.Context, employeeID string, day, today calendar.Date) (*leave.LeaveRequest, error) {
	v, err := h.Engine.ValidateSubmission(ctx, leave.Draft{
		EmployeeID: employeeID,
		LeaveType:  leave.Casual,
		StartDate:  day,
		EndDate:    day,
		Reason:     "family event out of town",
	}, today)
	if err != nil {
		return nil, err
	}
	return h.Engine.Submit(ctx, v)
}
