package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncLoginAttempt("success")
	IncLoginAttempt("failure")
	IncControlCommand("connect")
	IncStatusPoll()
	IncSupervisorFailure()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"speechadmin_auth_login_attempts_total":     false,
		"speechadmin_bot_control_commands_total":    false,
		"speechadmin_bot_status_polls_total":        false,
		"speechadmin_bot_supervisor_failures_total": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestLoginAttemptOutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, result := range []string{"success", "failure", "rate_limited"} {
		IncLoginAttempt(result)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "speechadmin_auth_login_attempts_total" {
			continue
		}
		if len(mf.GetMetric()) < 3 {
			t.Fatalf("expected samples for each outcome, got %d", len(mf.GetMetric()))
		}
		return
	}
	t.Fatal("login attempts metric not found")
}
