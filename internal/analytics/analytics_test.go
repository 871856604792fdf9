package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

type fakeSource struct {
	leads     []store.Lead
	parents   []time.Time
	sessions  []store.CompletedSession
	rules     []store.ResultRule
	parentsPD []store.DailyCount
	childPD   []store.DailyCount
	total     int
	recent    int
	hot       int
	warmOnly  int
}

func (f *fakeSource) ListLeadsCreatedBetween(_ context.Context, from, to time.Time) ([]store.Lead, error) {
	var out []store.Lead
	for _, l := range f.leads {
		if !l.CreatedAt.Before(from) && l.CreatedAt.Before(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) ListParentsCreatedBetween(_ context.Context, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range f.parents {
		if !t.Before(from) && t.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSource) ListCompletedSessionsBetween(_ context.Context, from, to time.Time) ([]store.CompletedSession, error) {
	var out []store.CompletedSession
	for _, s := range f.sessions {
		if !s.CompletedAt.Before(from) && s.CompletedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) ListRulesByTestIDs(context.Context, []int64) ([]store.ResultRule, error) {
	return f.rules, nil
}

func (f *fakeSource) ParentDailyCounts(context.Context) ([]store.DailyCount, error) {
	return f.parentsPD, nil
}

func (f *fakeSource) ChildDailyCounts(context.Context) ([]store.DailyCount, error) {
	return f.childPD, nil
}

func (f *fakeSource) CountParents(context.Context) (int, error)                 { return f.total, nil }
func (f *fakeSource) CountParentsSince(context.Context, time.Time) (int, error) { return f.recent, nil }
func (f *fakeSource) CountHotLeadParents(context.Context) (int, error)          { return f.hot, nil }
func (f *fakeSource) CountWarmOnlyLeadParents(context.Context) (int, error)     { return f.warmOnly, nil }

func lead(status string, at time.Time) store.Lead {
	return store.Lead{Status: status, CreatedAt: at}
}

func TestParseYear(t *testing.T) {
	if got := ParseYear("2025", 2026); got != 2025 {
		t.Fatalf("got %d", got)
	}
	for _, raw := range []string{"", "abc", "1800", "3000"} {
		if got := ParseYear(raw, 2026); got != 2026 {
			t.Fatalf("%q: expected fallback, got %d", raw, got)
		}
	}
}

func TestParseMonth(t *testing.T) {
	if got := ParseMonth("2026-03", "2026-01"); got != "2026-03" {
		t.Fatalf("got %q", got)
	}
	for _, raw := range []string{"", "2026", "2026-13", "2026-00", "march"} {
		if got := ParseMonth(raw, "2026-01"); got != "2026-01" {
			t.Fatalf("%q: expected fallback, got %q", raw, got)
		}
	}
}

func TestPercentChange(t *testing.T) {
	if pct := percentChange(150, 100); pct == nil || *pct != 50 {
		t.Fatalf("got %v", pct)
	}
	if pct := percentChange(50, 100); pct == nil || *pct != -50 {
		t.Fatalf("got %v", pct)
	}
	if pct := percentChange(10, 0); pct != nil {
		t.Fatalf("zero base has no trend, got %v", *pct)
	}
}

func TestOverviewMonthBucketsAndTrends(t *testing.T) {
	march := time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local)
	src := &fakeSource{
		leads: []store.Lead{
			lead("warm", march),
			lead("hot", march.Add(24*time.Hour)),
			lead("warm", time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local)),
			lead("hot", time.Date(2025, 7, 1, 0, 0, 0, 0, time.Local)), // prior year
		},
		parents: []time.Time{
			march,
			time.Date(2026, 3, 20, 8, 0, 0, 0, time.Local),
			time.Date(2025, 2, 1, 0, 0, 0, 0, time.Local), // prior year
		},
		sessions: []store.CompletedSession{
			{TestID: 1, Score: 2, CompletedAt: march},
			{TestID: 1, Score: 9, CompletedAt: march},
		},
		rules: []store.ResultRule{
			{TestID: 1, MinScore: 0, MaxScore: 5, Label: "Норма"},
		},
	}
	svc := NewService(src)
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.Local) }

	out, err := svc.Overview(context.Background(), 2026, "2026-03")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}

	if out.SelectedYear != 2026 || out.SelectedMonth != "2026-03" {
		t.Fatalf("unexpected selection: %d %q", out.SelectedYear, out.SelectedMonth)
	}
	if len(out.LeadsByMonth) != 12 {
		t.Fatalf("expected 12 month buckets, got %d", len(out.LeadsByMonth))
	}
	// March is the third bucket.
	if out.LeadsByMonth[2].Warm != 1 || out.LeadsByMonth[2].Hot != 1 {
		t.Fatalf("march leads: %+v", out.LeadsByMonth[2])
	}
	if out.LeadsByMonth[2].Month != "март" {
		t.Fatalf("expected ru month label, got %q", out.LeadsByMonth[2].Month)
	}
	if out.UniqueParentsByMonth[2].Parents != 2 {
		t.Fatalf("march parents: %+v", out.UniqueParentsByMonth[2])
	}

	// Distribution: one session matches the rule, one falls outside.
	if len(out.ResultsDistribution) != 2 {
		t.Fatalf("distribution: %+v", out.ResultsDistribution)
	}
	for _, slice := range out.ResultsDistribution {
		if slice.Label != "Норма" && slice.Label != "Без категории" {
			t.Fatalf("unexpected label %q", slice.Label)
		}
		if slice.Value != 1 {
			t.Fatalf("unexpected value: %+v", slice)
		}
	}

	// Yearly trends against 2025.
	if out.Trends.YearlyLeads.Current != 3 || out.Trends.YearlyLeads.Previous != 1 {
		t.Fatalf("yearly leads trend: %+v", out.Trends.YearlyLeads)
	}
	if !out.Trends.YearlyLeads.HasEnoughData || out.Trends.YearlyLeads.ChangePct == nil {
		t.Fatalf("yearly leads trend must have data: %+v", out.Trends.YearlyLeads)
	}
	if out.Trends.YearlyParents.Current != 2 || out.Trends.YearlyParents.Previous != 1 {
		t.Fatalf("yearly parents trend: %+v", out.Trends.YearlyParents)
	}
	if out.Trends.YearlyResults.Previous != 0 || out.Trends.YearlyResults.HasEnoughData {
		t.Fatalf("no prior-year sessions: %+v", out.Trends.YearlyResults)
	}

	// Monthly: March vs February.
	if out.Trends.MonthlyLeads.CurrentTotal != 2 || out.Trends.MonthlyLeads.PreviousTotal != 0 {
		t.Fatalf("monthly leads trend: %+v", out.Trends.MonthlyLeads)
	}
	if out.Trends.MonthlyLeads.HasEnoughData {
		t.Fatalf("february had no leads")
	}
	if len(out.ParentsByDay) != 31 {
		t.Fatalf("march has 31 day buckets, got %d", len(out.ParentsByDay))
	}
	if out.ParentsByDay[4].Parents != 1 {
		t.Fatalf("march 5th parent bucket: %+v", out.ParentsByDay[4])
	}
	if out.LeadsByDay[4].Warm != 1 || out.LeadsByDay[5].Hot != 1 {
		t.Fatalf("march lead day buckets: %+v %+v", out.LeadsByDay[4], out.LeadsByDay[5])
	}
	if out.MonthRangeLabel != "март 2026" {
		t.Fatalf("month label: %q", out.MonthRangeLabel)
	}
}

func TestTimelineMergesDays(t *testing.T) {
	src := &fakeSource{
		parentsPD: []store.DailyCount{
			{Date: "2026-02-10", Count: 2},
			{Date: "2026-02-12", Count: 1},
		},
		childPD: []store.DailyCount{
			{Date: "2026-02-10", Count: 1},
			{Date: "2026-02-11", Count: 3},
		},
	}
	svc := NewService(src)

	timeline, err := svc.Timeline(context.Background())
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("expected 3 merged days, got %d", len(timeline))
	}
	if timeline[0].Date != "2026-02-10" || timeline[0].Parents != 2 || timeline[0].Children != 1 {
		t.Fatalf("first day: %+v", timeline[0])
	}
	if timeline[1].Date != "2026-02-11" || timeline[1].Parents != 0 || timeline[1].Children != 3 {
		t.Fatalf("second day: %+v", timeline[1])
	}
}

func TestSummaryCounters(t *testing.T) {
	src := &fakeSource{total: 10, recent: 4, hot: 2, warmOnly: 3}
	svc := NewService(src)

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalUsers != 10 || sum.NewUsers30d != 4 || sum.HotLeads != 2 || sum.WarmLeads != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
