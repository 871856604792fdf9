package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCall struct {
	args []string
}

// fakeRunner scripts pm2 CLI behavior: jlist output plus per-command errors.
type fakeRunner struct {
	jlist    string
	jlistErr error
	cmdErr   error
	calls    []fakeCall
}

func (f *fakeRunner) run(_ context.Context, _, _ string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, fakeCall{args: args})
	if len(args) > 0 && args[0] == "jlist" {
		return []byte(f.jlist), f.jlistErr
	}
	return nil, f.cmdErr
}

func newTestSupervisor(f *fakeRunner) *Supervisor {
	s := NewSupervisor(SupervisorConfig{
		ProcessName:   "speechcenter-bot",
		EcosystemPath: "/srv/bot/ecosystem.config.cjs",
	})
	s.run = f.run
	return s
}

func jlistWith(status string) string {
	return `[{"name":"speechcenter-bot","pm2_env":{"status":"` + status + `"}},
	         {"name":"other-app","pm2_env":{"status":"online"}}]`
}

func TestStatusOnline(t *testing.T) {
	s := newTestSupervisor(&fakeRunner{jlist: jlistWith("online")})
	st := s.Status(context.Background())
	if !st.Available || st.State != ProcessOnline {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStatusStoppedVariants(t *testing.T) {
	for _, raw := range []string{"stopped", "stopping", "errored"} {
		s := newTestSupervisor(&fakeRunner{jlist: jlistWith(raw)})
		st := s.Status(context.Background())
		if st.State != ProcessStopped {
			t.Fatalf("pm2 status %q should map to stopped, got %+v", raw, st)
		}
	}
}

func TestStatusUnknownPm2State(t *testing.T) {
	s := newTestSupervisor(&fakeRunner{jlist: jlistWith("launching")})
	st := s.Status(context.Background())
	if st.State != ProcessUnknown || !strings.Contains(st.Message, "launching") {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStatusMissingProcess(t *testing.T) {
	s := newTestSupervisor(&fakeRunner{jlist: `[{"name":"other","pm2_env":{"status":"online"}}]`})
	st := s.Status(context.Background())
	if !st.Available || st.State != ProcessMissing {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStatusCLIFailureNeverPanics(t *testing.T) {
	s := newTestSupervisor(&fakeRunner{jlistErr: errors.New("exec: \"pm2\": executable file not found in $PATH")})
	st := s.Status(context.Background())
	if st.Available {
		t.Fatalf("CLI failure must degrade to unavailable: %+v", st)
	}
	if st.State != ProcessUnknown || st.Message == "" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStatusBadJSON(t *testing.T) {
	s := newTestSupervisor(&fakeRunner{jlist: "not json"})
	st := s.Status(context.Background())
	if st.Available || st.State != ProcessUnknown {
		t.Fatalf("parse failure must degrade to unavailable: %+v", st)
	}
}

func TestEnsureOnlineStartsMissingProcess(t *testing.T) {
	f := &fakeRunner{jlist: `[]`}
	s := newTestSupervisor(f)
	if err := s.EnsureOnline(context.Background()); err != nil {
		t.Fatalf("ensure online: %v", err)
	}
	last := f.calls[len(f.calls)-1].args
	want := []string{"start", "/srv/bot/ecosystem.config.cjs", "--only", "speechcenter-bot", "--update-env"}
	if strings.Join(last, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected start invocation: %v", last)
	}
}

func TestEnsureOnlineRestartsStoppedProcess(t *testing.T) {
	f := &fakeRunner{jlist: jlistWith("stopped")}
	s := newTestSupervisor(f)
	if err := s.EnsureOnline(context.Background()); err != nil {
		t.Fatalf("ensure online: %v", err)
	}
	last := f.calls[len(f.calls)-1].args
	if strings.Join(last, " ") != "restart speechcenter-bot --update-env" {
		t.Fatalf("unexpected restart invocation: %v", last)
	}
}

func TestEnsureOnlineSkipsRunningProcess(t *testing.T) {
	f := &fakeRunner{jlist: jlistWith("online")}
	s := newTestSupervisor(f)
	if err := s.EnsureOnline(context.Background()); err != nil {
		t.Fatalf("ensure online: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("online process needs no action, calls: %v", f.calls)
	}
}

func TestRestartAlwaysRestartsOnlineProcess(t *testing.T) {
	f := &fakeRunner{jlist: jlistWith("online")}
	s := newTestSupervisor(f)
	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	last := f.calls[len(f.calls)-1].args
	if last[0] != "restart" {
		t.Fatalf("expected restart, got %v", last)
	}
}

func TestEnsureOnlineUnavailableManager(t *testing.T) {
	s := newTestSupervisor(&fakeRunner{jlistErr: errors.New("not found")})
	err := s.EnsureOnline(context.Background())
	if !errors.Is(err, ErrManagerUnavailable) {
		t.Fatalf("expected ErrManagerUnavailable, got %v", err)
	}
}

func TestStopSkipsMissingAndStopped(t *testing.T) {
	for _, jl := range []string{`[]`, jlistWith("stopped")} {
		f := &fakeRunner{jlist: jl}
		s := newTestSupervisor(f)
		if err := s.Stop(context.Background()); err != nil {
			t.Fatalf("stop: %v", err)
		}
		if len(f.calls) != 1 {
			t.Fatalf("stop on %q should be a no-op, calls: %v", jl, f.calls)
		}
	}
}

func TestStopRunningProcess(t *testing.T) {
	f := &fakeRunner{jlist: jlistWith("online")}
	s := newTestSupervisor(f)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	last := f.calls[len(f.calls)-1].args
	if strings.Join(last, " ") != "stop speechcenter-bot" {
		t.Fatalf("unexpected stop invocation: %v", last)
	}
}
