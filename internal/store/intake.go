package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Parent is a registered parent contact.
type Parent struct {
	ID        int64
	FullName  string
	Phone     string
	CreatedAt time.Time
}

// Child belongs to a parent; BirthDate is stored as a date.
type Child struct {
	ID        int64
	FullName  string
	BirthDate time.Time
	Language  string // "ru", "kz" or "both"
	ParentID  int64
	CreatedAt time.Time
}

// Lead marks a parent as warm or hot for the sales funnel.
type Lead struct {
	ID        int64
	ParentID  int64
	ChildID   sql.NullInt64
	CreatedAt time.Time
	Status    string // "warm" or "hot"
}

// UserSession is the bot-side intake session of a parent.
type UserSession struct {
	ID         int64
	ParentID   int64
	ChildID    sql.NullInt64
	Status     string // "registered", "testing", "done"
	Step       string
	UILanguage sql.NullString
	StartedAt  time.Time
	LastSeenAt time.Time
}

// CompletedSession is the analytics projection of a finished test session.
type CompletedSession struct {
	TestID      int64
	Score       int
	CompletedAt time.Time
}

// DailyCount is a per-day aggregation row.
type DailyCount struct {
	Date  string // YYYY-MM-DD
	Count int
}

// CountParents returns the total number of registered parents.
func (s *Store) CountParents(ctx context.Context) (int, error) {
	return s.scalarCount(ctx, `SELECT COUNT(*) FROM parents;`)
}

// CountParentsSince counts parents created at or after the given time.
func (s *Store) CountParentsSince(ctx context.Context, since time.Time) (int, error) {
	return s.scalarCount(ctx, `SELECT COUNT(*) FROM parents WHERE created_at >= $1;`, since.UTC())
}

// CountHotLeadParents counts distinct parents with at least one hot lead.
func (s *Store) CountHotLeadParents(ctx context.Context) (int, error) {
	return s.scalarCount(ctx, `
		SELECT COUNT(DISTINCT parent_id) FROM leads WHERE leads='hot';`)
}

// CountWarmOnlyLeadParents counts distinct warm-lead parents that never
// progressed to hot; a hot lead supersedes warm for the same parent.
func (s *Store) CountWarmOnlyLeadParents(ctx context.Context) (int, error) {
	return s.scalarCount(ctx, `
		SELECT COUNT(DISTINCT parent_id) FROM leads
		WHERE leads='warm' AND parent_id NOT IN (
			SELECT DISTINCT parent_id FROM leads WHERE leads='hot');`)
}

func (s *Store) scalarCount(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return n, nil
}

// ListLeads returns every lead row.
func (s *Store) ListLeads(ctx context.Context) ([]Lead, error) {
	return s.queryLeads(ctx, `
		SELECT id, parent_id, children_id, created_at, leads FROM leads;`)
}

// ListLeadsCreatedBetween returns leads created in [from, to).
func (s *Store) ListLeadsCreatedBetween(ctx context.Context, from, to time.Time) ([]Lead, error) {
	return s.queryLeads(ctx, `
		SELECT id, parent_id, children_id, created_at, leads FROM leads
		WHERE created_at >= $1 AND created_at < $2;`, from.UTC(), to.UTC())
}

func (s *Store) queryLeads(ctx context.Context, query string, args ...any) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.ParentID, &l.ChildID, &l.CreatedAt, &l.Status); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListParentsByIDs fetches parents for the given ids.
func (s *Store) ListParentsByIDs(ctx context.Context, ids []int64) ([]Parent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClause(`
		SELECT id, fullname, phone, created_at FROM parents WHERE id IN (%s);`, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Parent
	for rows.Next() {
		var p Parent
		if err := rows.Scan(&p.ID, &p.FullName, &p.Phone, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListParentsCreatedBetween returns parent creation timestamps in [from, to).
func (s *Store) ListParentsCreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at FROM parents
		WHERE created_at >= $1 AND created_at < $2;`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list parent created_at: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListChildrenByParentIDs fetches children belonging to any of the parents.
func (s *Store) ListChildrenByParentIDs(ctx context.Context, parentIDs []int64) ([]Child, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	query, args := inClause(`
		SELECT id, fullname, birth_date, language, parent_id, created_at
		FROM children WHERE parent_id IN (%s);`, parentIDs)
	return s.queryChildren(ctx, query, args...)
}

// ListChildrenByIDs fetches children by their own ids.
func (s *Store) ListChildrenByIDs(ctx context.Context, ids []int64) ([]Child, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClause(`
		SELECT id, fullname, birth_date, language, parent_id, created_at
		FROM children WHERE id IN (%s);`, ids)
	return s.queryChildren(ctx, query, args...)
}

func (s *Store) queryChildren(ctx context.Context, query string, args ...any) ([]Child, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Child
	for rows.Next() {
		var c Child
		if err := rows.Scan(&c.ID, &c.FullName, &c.BirthDate, &c.Language, &c.ParentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListUserSessions returns every intake session, most recently seen first.
func (s *Store) ListUserSessions(ctx context.Context) ([]UserSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, children_id, status, step, ui_language, started_at, last_seen_at
		FROM user_sessions
		ORDER BY last_seen_at DESC, id DESC;`)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []UserSession
	for rows.Next() {
		var u UserSession
		if err := rows.Scan(&u.ID, &u.ParentID, &u.ChildID, &u.Status, &u.Step, &u.UILanguage, &u.StartedAt, &u.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListCompletedSessionsBetween returns complete test sessions whose
// completed_at falls in [from, to).
func (s *Store) ListCompletedSessionsBetween(ctx context.Context, from, to time.Time) ([]CompletedSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_id, score, completed_at FROM sessions
		WHERE status='complete' AND completed_at >= $1 AND completed_at < $2;`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []CompletedSession
	for rows.Next() {
		var cs CompletedSession
		if err := rows.Scan(&cs.TestID, &cs.Score, &cs.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ListRulesByTestIDs returns scoring rules for any of the given tests.
func (s *Store) ListRulesByTestIDs(ctx context.Context, testIDs []int64) ([]ResultRule, error) {
	if len(testIDs) == 0 {
		return nil, nil
	}
	query, args := inClause(`
		SELECT id, test_id, min_score, max_score, label, text_ru, text_kz
		FROM test_result_rules WHERE test_id IN (%s);`, testIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules by tests: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ResultRule
	for rows.Next() {
		var r ResultRule
		if err := rows.Scan(&r.ID, &r.TestID, &r.MinScore, &r.MaxScore, &r.Label, &r.TextRu, &r.TextKz); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ParentDailyCounts returns parents registered per calendar day.
func (s *Store) ParentDailyCounts(ctx context.Context) ([]DailyCount, error) {
	return s.dailyCounts(ctx, "parents")
}

// ChildDailyCounts returns children registered per calendar day.
func (s *Store) ChildDailyCounts(ctx context.Context) ([]DailyCount, error) {
	return s.dailyCounts(ctx, "children")
}

func (s *Store) dailyCounts(ctx context.Context, table string) ([]DailyCount, error) {
	var expr string
	if s.dialect == DialectPostgres {
		expr = `date_trunc('day', created_at)::date::text`
	} else {
		expr = `date(created_at)`
	}
	// table is one of two compile-time constants, never user input
	query := fmt.Sprintf(`SELECT %s AS d, COUNT(*) FROM %s GROUP BY d ORDER BY d;`, expr, table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("daily counts for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	var out []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// inClause expands an IN (%s) placeholder with numbered parameters.
func inClause(format string, ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return fmt.Sprintf(format, strings.Join(ph, ",")), args
}
