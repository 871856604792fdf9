package analytics

import (
	"context"
	"sort"
)

// TimelinePoint is one day of registrations.
type TimelinePoint struct {
	Date     string `json:"date"`
	Parents  int    `json:"parents"`
	Children int    `json:"children"`
}

// Timeline merges per-day parent and child registration counts
// into a single date-ordered series.
func (s *Service) Timeline(ctx context.Context) ([]TimelinePoint, error) {
	parents, err := s.src.ParentDailyCounts(ctx)
	if err != nil {
		return nil, err
	}
	children, err := s.src.ChildDailyCounts(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*TimelinePoint, len(parents)+len(children))
	point := func(date string) *TimelinePoint {
		if p, ok := merged[date]; ok {
			return p
		}
		p := &TimelinePoint{Date: date}
		merged[date] = p
		return p
	}
	for _, row := range parents {
		point(row.Date).Parents = row.Count
	}
	for _, row := range children {
		point(row.Date).Children = row.Count
	}

	out := make([]TimelinePoint, 0, len(merged))
	for _, p := range merged {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Summary is the headline card block of the admin dashboard.
type Summary struct {
	TotalUsers  int `json:"totalUsers"`
	NewUsers30d int `json:"newUsers30d"`
	WarmLeads   int `json:"warmLeads"`
	HotLeads    int `json:"hotLeads"`
}

// Summary counts parents and lead tiers. A parent with any hot lead
// counts as hot only; warm counts parents with warm leads and no hot one.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	total, err := s.src.CountParents(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.src.CountParentsSince(ctx, s.now().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	hot, err := s.src.CountHotLeadParents(ctx)
	if err != nil {
		return nil, err
	}
	warm, err := s.src.CountWarmOnlyLeadParents(ctx)
	if err != nil {
		return nil, err
	}
	return &Summary{TotalUsers: total, NewUsers30d: recent, WarmLeads: warm, HotLeads: hot}, nil
}
