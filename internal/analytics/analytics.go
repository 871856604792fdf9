package analytics

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

// DataSource is the slice of the relational store the analytics service reads.
type DataSource interface {
	ListLeadsCreatedBetween(ctx context.Context, from, to time.Time) ([]store.Lead, error)
	ListParentsCreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
	ListCompletedSessionsBetween(ctx context.Context, from, to time.Time) ([]store.CompletedSession, error)
	ListRulesByTestIDs(ctx context.Context, testIDs []int64) ([]store.ResultRule, error)
	ParentDailyCounts(ctx context.Context) ([]store.DailyCount, error)
	ChildDailyCounts(ctx context.Context) ([]store.DailyCount, error)
	CountParents(ctx context.Context) (int, error)
	CountParentsSince(ctx context.Context, since time.Time) (int, error)
	CountHotLeadParents(ctx context.Context) (int, error)
	CountWarmOnlyLeadParents(ctx context.Context) (int, error)
}

// Service computes dashboard aggregations. Bucketing happens in Go over
// narrow row projections, mirroring how the dashboards interpret data.
type Service struct {
	src DataSource
	now func() time.Time
}

func NewService(src DataSource) *Service {
	return &Service{src: src, now: time.Now}
}

// Overview is the year/month analytics payload for the dashboard charts.
type Overview struct {
	SelectedYear         int            `json:"selectedYear"`
	SelectedMonth        string         `json:"selectedMonth"`
	YearRangeLabel       string         `json:"yearRangeLabel"`
	MonthRangeLabel      string         `json:"monthRangeLabel"`
	LeadsByMonth         []MonthLeads   `json:"leadsByMonth"`
	UniqueParentsByMonth []MonthParents `json:"uniqueParentsByMonth"`
	ResultsDistribution  []ResultSlice  `json:"resultsDistribution"`
	ParentsByDay         []DayParents   `json:"parentsByDay"`
	LeadsByDay           []DayLeads     `json:"leadsByDay"`
	Trends               Trends         `json:"trends"`
}

type MonthLeads struct {
	Month string `json:"month"`
	Warm  int    `json:"warm"`
	Hot   int    `json:"hot"`
}

type MonthParents struct {
	Month   string `json:"month"`
	Parents int    `json:"parents"`
}

type ResultSlice struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

type DayParents struct {
	Day     string `json:"day"`
	Parents int    `json:"parents"`
}

type DayLeads struct {
	Day  string `json:"day"`
	Warm int    `json:"warm"`
	Hot  int    `json:"hot"`
}

type Trend struct {
	Current       int      `json:"current"`
	Previous      int      `json:"previous"`
	ChangePct     *float64 `json:"changePct"`
	HasEnoughData bool     `json:"hasEnoughData"`
}

type LeadsTrend struct {
	CurrentWarm   int      `json:"currentWarm"`
	CurrentHot    int      `json:"currentHot"`
	CurrentTotal  int      `json:"currentTotal"`
	PreviousWarm  int      `json:"previousWarm"`
	PreviousHot   int      `json:"previousHot"`
	PreviousTotal int      `json:"previousTotal"`
	ChangePct     *float64 `json:"changePct"`
	HasEnoughData bool     `json:"hasEnoughData"`
}

type Trends struct {
	YearlyLeads    Trend      `json:"yearlyLeads"`
	YearlyParents  Trend      `json:"yearlyParents"`
	YearlyResults  Trend      `json:"yearlyResults"`
	MonthlyParents Trend      `json:"monthlyParents"`
	MonthlyLeads   LeadsTrend `json:"monthlyLeads"`
}

// Chart labels follow the ru-RU locale used by the dashboard front-end.
var monthShortRu = [...]string{
	"янв.", "февр.", "март", "апр.", "май", "июнь",
	"июль", "авг.", "сент.", "окт.", "нояб.", "дек.",
}

var monthLongRu = [...]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

var chartPalette = [...]string{
	"var(--chart-1)", "var(--chart-2)", "var(--chart-3)",
	"var(--chart-4)", "var(--chart-5)", "var(--chart-1)",
}

var monthValueRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ParseYear validates a year query parameter, falling back when invalid.
func ParseYear(raw string, fallback int) int {
	var y int
	if _, err := fmt.Sscanf(raw, "%d", &y); err != nil {
		return fallback
	}
	if y < 2000 || y > 2100 {
		return fallback
	}
	return y
}

// ParseMonth validates a "YYYY-MM" query parameter.
func ParseMonth(raw, fallback string) string {
	if raw == "" || !monthValueRe.MatchString(raw) {
		return fallback
	}
	var y, m int
	if _, err := fmt.Sscanf(raw, "%d-%d", &y, &m); err != nil {
		return fallback
	}
	if m < 1 || m > 12 {
		return fallback
	}
	return raw
}

func percentChange(current, previous int) *float64 {
	if previous <= 0 {
		return nil
	}
	pct := (float64(current-previous) / float64(previous)) * 100
	return &pct
}

func startEndOfYear(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.Local)
	return start, start.AddDate(1, 0, 0)
}

func startEndOfMonth(monthValue string) (time.Time, time.Time) {
	var y, m int
	_, _ = fmt.Sscanf(monthValue, "%d-%d", &y, &m)
	start := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.Local)
	return start, start.AddDate(0, 1, 0)
}

func previousMonth(monthValue string) string {
	start, _ := startEndOfMonth(monthValue)
	prev := start.AddDate(0, -1, 0)
	return fmt.Sprintf("%04d-%02d", prev.Year(), int(prev.Month()))
}

func monthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

func dayLabel(t time.Time) string {
	return fmt.Sprintf("%02d", t.Day())
}

// Overview aggregates leads, parents and test results for the selected
// year and month, with trends against the prior year and month.
func (s *Service) Overview(ctx context.Context, year int, monthValue string) (*Overview, error) {
	now := s.now()
	year = clampYear(year, now.Year())
	if monthValue == "" {
		monthValue = monthKey(now)
	}

	yearStart, yearEnd := startEndOfYear(year)
	prevYearStart, _ := startEndOfYear(year - 1)
	monthStart, monthEnd := startEndOfMonth(monthValue)
	prevMonthStart, _ := startEndOfMonth(previousMonth(monthValue))

	out := &Overview{
		SelectedYear:   year,
		SelectedMonth:  monthValue,
		YearRangeLabel: fmt.Sprintf("01.01.%d - 31.12.%d", year, year),
		MonthRangeLabel: fmt.Sprintf("%s %d",
			monthLongRu[int(monthStart.Month())-1], monthStart.Year()),
	}

	if err := s.fillYearly(ctx, out, year, prevYearStart, yearStart, yearEnd); err != nil {
		return nil, err
	}
	if err := s.fillMonthly(ctx, out, prevMonthStart, monthStart, monthEnd); err != nil {
		return nil, err
	}
	return out, nil
}

func clampYear(year, fallback int) int {
	if year < 2000 || year > 2100 {
		return fallback
	}
	return year
}

func (s *Service) fillYearly(ctx context.Context, out *Overview, year int, prevYearStart, yearStart, yearEnd time.Time) error {
	leads, err := s.src.ListLeadsCreatedBetween(ctx, prevYearStart, yearEnd)
	if err != nil {
		return err
	}

	type monthBucket struct{ warm, hot int }
	leadsByMonth := make(map[string]*monthBucket, 12)
	parentsByMonth := make(map[string]int, 12)
	months := make([]time.Time, 12)
	for i := 0; i < 12; i++ {
		m := time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.Local)
		months[i] = m
		leadsByMonth[monthKey(m)] = &monthBucket{}
		parentsByMonth[monthKey(m)] = 0
	}

	var leadsCurrentYear, leadsPrevYear int
	for _, lead := range leads {
		d := lead.CreatedAt.In(time.Local)
		switch {
		case !d.Before(yearStart) && d.Before(yearEnd):
			leadsCurrentYear++
			if b, ok := leadsByMonth[monthKey(d)]; ok {
				if lead.Status == "hot" {
					b.hot++
				} else {
					b.warm++
				}
			}
		case !d.Before(prevYearStart) && d.Before(yearStart):
			leadsPrevYear++
		}
	}

	parentDates, err := s.src.ListParentsCreatedBetween(ctx, prevYearStart, yearEnd)
	if err != nil {
		return err
	}
	var parentsCurrentYear, parentsPrevYear int
	for _, created := range parentDates {
		d := created.In(time.Local)
		switch {
		case !d.Before(yearStart) && d.Before(yearEnd):
			parentsCurrentYear++
			parentsByMonth[monthKey(d)]++
		case !d.Before(prevYearStart) && d.Before(yearStart):
			parentsPrevYear++
		}
	}

	sessions, err := s.src.ListCompletedSessionsBetween(ctx, prevYearStart, yearEnd)
	if err != nil {
		return err
	}
	var testIDs []int64
	seen := make(map[int64]bool)
	for _, sess := range sessions {
		if !seen[sess.TestID] {
			seen[sess.TestID] = true
			testIDs = append(testIDs, sess.TestID)
		}
	}
	rules, err := s.src.ListRulesByTestIDs(ctx, testIDs)
	if err != nil {
		return err
	}
	rulesByTest := make(map[int64][]store.ResultRule)
	for _, r := range rules {
		rulesByTest[r.TestID] = append(rulesByTest[r.TestID], r)
	}

	var resultsCurrentYear, resultsPrevYear int
	resultCounts := make(map[string]int)
	var resultOrder []string
	for _, sess := range sessions {
		d := sess.CompletedAt.In(time.Local)
		label := "Без категории"
		for _, r := range rulesByTest[sess.TestID] {
			if sess.Score >= r.MinScore && sess.Score <= r.MaxScore {
				label = r.Label
				break
			}
		}
		switch {
		case !d.Before(yearStart) && d.Before(yearEnd):
			resultsCurrentYear++
			if _, ok := resultCounts[label]; !ok {
				resultOrder = append(resultOrder, label)
			}
			resultCounts[label]++
		case !d.Before(prevYearStart) && d.Before(yearStart):
			resultsPrevYear++
		}
	}

	out.LeadsByMonth = make([]MonthLeads, 0, 12)
	out.UniqueParentsByMonth = make([]MonthParents, 0, 12)
	for _, m := range months {
		b := leadsByMonth[monthKey(m)]
		label := monthShortRu[int(m.Month())-1]
		out.LeadsByMonth = append(out.LeadsByMonth, MonthLeads{Month: label, Warm: b.warm, Hot: b.hot})
		out.UniqueParentsByMonth = append(out.UniqueParentsByMonth, MonthParents{
			Month: label, Parents: parentsByMonth[monthKey(m)],
		})
	}

	out.ResultsDistribution = make([]ResultSlice, 0, len(resultOrder))
	for i, label := range resultOrder {
		out.ResultsDistribution = append(out.ResultsDistribution, ResultSlice{
			Key:   fmt.Sprintf("result_%d", i+1),
			Label: label,
			Value: resultCounts[label],
			Color: chartPalette[i%len(chartPalette)],
		})
	}

	out.Trends.YearlyLeads = Trend{
		Current: leadsCurrentYear, Previous: leadsPrevYear,
		ChangePct: percentChange(leadsCurrentYear, leadsPrevYear), HasEnoughData: leadsPrevYear > 0,
	}
	out.Trends.YearlyParents = Trend{
		Current: parentsCurrentYear, Previous: parentsPrevYear,
		ChangePct: percentChange(parentsCurrentYear, parentsPrevYear), HasEnoughData: parentsPrevYear > 0,
	}
	out.Trends.YearlyResults = Trend{
		Current: resultsCurrentYear, Previous: resultsPrevYear,
		ChangePct: percentChange(resultsCurrentYear, resultsPrevYear), HasEnoughData: resultsPrevYear > 0,
	}
	return nil
}

func (s *Service) fillMonthly(ctx context.Context, out *Overview, prevMonthStart, monthStart, monthEnd time.Time) error {
	parentDates, err := s.src.ListParentsCreatedBetween(ctx, prevMonthStart, monthEnd)
	if err != nil {
		return err
	}
	monthLeads, err := s.src.ListLeadsCreatedBetween(ctx, prevMonthStart, monthEnd)
	if err != nil {
		return err
	}

	var days []time.Time
	for d := monthStart; d.Before(monthEnd); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	parentsByDay := make(map[string]int, len(days))
	type dayBucket struct{ warm, hot int }
	leadsByDay := make(map[string]*dayBucket, len(days))
	for _, d := range days {
		parentsByDay[dayLabel(d)] = 0
		leadsByDay[dayLabel(d)] = &dayBucket{}
	}

	var parentsCurrent, parentsPrevious int
	for _, created := range parentDates {
		d := created.In(time.Local)
		switch {
		case !d.Before(monthStart) && d.Before(monthEnd):
			parentsCurrent++
			parentsByDay[dayLabel(d)]++
		case !d.Before(prevMonthStart) && d.Before(monthStart):
			parentsPrevious++
		}
	}

	var warmCurrent, hotCurrent, warmPrevious, hotPrevious int
	for _, lead := range monthLeads {
		d := lead.CreatedAt.In(time.Local)
		switch {
		case !d.Before(monthStart) && d.Before(monthEnd):
			if b, ok := leadsByDay[dayLabel(d)]; ok {
				if lead.Status == "hot" {
					b.hot++
					hotCurrent++
				} else {
					b.warm++
					warmCurrent++
				}
			}
		case !d.Before(prevMonthStart) && d.Before(monthStart):
			if lead.Status == "hot" {
				hotPrevious++
			} else {
				warmPrevious++
			}
		}
	}

	out.ParentsByDay = make([]DayParents, 0, len(days))
	out.LeadsByDay = make([]DayLeads, 0, len(days))
	for _, d := range days {
		label := dayLabel(d)
		b := leadsByDay[label]
		out.ParentsByDay = append(out.ParentsByDay, DayParents{Day: label, Parents: parentsByDay[label]})
		out.LeadsByDay = append(out.LeadsByDay, DayLeads{Day: label, Warm: b.warm, Hot: b.hot})
	}

	out.Trends.MonthlyParents = Trend{
		Current: parentsCurrent, Previous: parentsPrevious,
		ChangePct: percentChange(parentsCurrent, parentsPrevious), HasEnoughData: parentsPrevious > 0,
	}
	out.Trends.MonthlyLeads = LeadsTrend{
		CurrentWarm: warmCurrent, CurrentHot: hotCurrent, CurrentTotal: warmCurrent + hotCurrent,
		PreviousWarm: warmPrevious, PreviousHot: hotPrevious, PreviousTotal: warmPrevious + hotPrevious,
		ChangePct:     percentChange(warmCurrent+hotCurrent, warmPrevious+hotPrevious),
		HasEnoughData: warmPrevious+hotPrevious > 0,
	}
	return nil
}
