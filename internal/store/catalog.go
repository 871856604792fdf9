package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrTestNotFound = errors.New("test not found")

// Test is a diagnostic test scoped to an age range. Ranges across tests
// must not overlap so the bot can pick exactly one test per child age.
type Test struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	AgeFrom   int       `json:"ageFrom"`
	AgeTo     int       `json:"ageTo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TestSummary is the list-view projection with child-row counts.
type TestSummary struct {
	Test
	QuestionsCount int `json:"questionsCount"`
	RulesCount     int `json:"rulesCount"`
}

type Question struct {
	ID     int64          `json:"id"`
	TestID int64          `json:"-"`
	TextRu string         `json:"textRu"`
	TextKz string         `json:"textKz"`
	TextEn sql.NullString `json:"-"`
}

type Answer struct {
	ID         int64          `json:"id"`
	QuestionID int64          `json:"-"`
	TextRu     string         `json:"textRu"`
	TextKz     string         `json:"textKz"`
	TextEn     sql.NullString `json:"-"`
	Points     int            `json:"points"`
}

type ResultRule struct {
	ID       int64  `json:"id"`
	TestID   int64  `json:"-"`
	MinScore int    `json:"minScore"`
	MaxScore int    `json:"maxScore"`
	Label    string `json:"label"`
	TextRu   string `json:"textRu"`
	TextKz   string `json:"textKz"`
}

// TestDetail is the full editor view of a test.
type TestDetail struct {
	Test
	Questions []QuestionDetail `json:"questions"`
	Rules     []ResultRule     `json:"rules"`
}

type QuestionDetail struct {
	Question
	Answers []Answer `json:"answers"`
}

// TestInput is the normalized create/update payload.
type TestInput struct {
	Name      string
	AgeFrom   int
	AgeTo     int
	Questions []QuestionInput
	Rules     []RuleInput
}

type QuestionInput struct {
	TextRu  string
	TextKz  string
	Answers []AnswerInput
}

type AnswerInput struct {
	TextRu string
	TextKz string
	Points int
}

type RuleInput struct {
	MinScore int
	MaxScore int
	Label    string
	TextRu   string
	TextKz   string
}

// ListTests returns all tests ordered by age range then id.
func (s *Store) ListTests(ctx context.Context) ([]Test, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, age_from, age_to, created_at, updated_at
		FROM tests ORDER BY age_from ASC, id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Test
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.Name, &t.AgeFrom, &t.AgeTo, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTestSummaries returns all tests with question and rule counts.
func (s *Store) ListTestSummaries(ctx context.Context) ([]TestSummary, error) {
	tests, err := s.ListTests(ctx)
	if err != nil {
		return nil, err
	}
	questionCounts, err := s.countByTest(ctx, `SELECT text_id, COUNT(*) FROM questions GROUP BY text_id;`)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	ruleCounts, err := s.countByTest(ctx, `SELECT test_id, COUNT(*) FROM test_result_rules GROUP BY test_id;`)
	if err != nil {
		return nil, fmt.Errorf("count rules: %w", err)
	}
	out := make([]TestSummary, 0, len(tests))
	for _, t := range tests {
		out = append(out, TestSummary{
			Test:           t,
			QuestionsCount: questionCounts[t.ID],
			RulesCount:     ruleCounts[t.ID],
		})
	}
	return out, nil
}

func (s *Store) countByTest(ctx context.Context, query string) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// GetTestDetail loads a test with its questions, answers and rules.
func (s *Store) GetTestDetail(ctx context.Context, testID int64) (*TestDetail, error) {
	var d TestDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, age_from, age_to, created_at, updated_at
		FROM tests WHERE id=$1;`, testID).Scan(
		&d.ID, &d.Name, &d.AgeFrom, &d.AgeTo, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	qrows, err := s.db.QueryContext(ctx, `
		SELECT id, text_id, text_ru, text_kz, text_en
		FROM questions WHERE text_id=$1 ORDER BY id ASC;`, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() { _ = qrows.Close() }()
	var questionIDs []int64
	for qrows.Next() {
		var q Question
		if err := qrows.Scan(&q.ID, &q.TestID, &q.TextRu, &q.TextKz, &q.TextEn); err != nil {
			return nil, err
		}
		d.Questions = append(d.Questions, QuestionDetail{Question: q})
		questionIDs = append(questionIDs, q.ID)
	}
	if err := qrows.Err(); err != nil {
		return nil, err
	}

	if len(questionIDs) > 0 {
		arows, err := s.db.QueryContext(ctx, `
			SELECT a.id, a.question_id, a.text_ru, a.text_kz, a.text_en, a.points
			FROM answers a
			INNER JOIN questions q ON q.id = a.question_id
			WHERE q.text_id=$1 ORDER BY a.id ASC;`, testID)
		if err != nil {
			return nil, fmt.Errorf("list answers: %w", err)
		}
		defer func() { _ = arows.Close() }()
		byQuestion := make(map[int64][]Answer)
		for arows.Next() {
			var a Answer
			if err := arows.Scan(&a.ID, &a.QuestionID, &a.TextRu, &a.TextKz, &a.TextEn, &a.Points); err != nil {
				return nil, err
			}
			byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
		}
		if err := arows.Err(); err != nil {
			return nil, err
		}
		for i := range d.Questions {
			d.Questions[i].Answers = byQuestion[d.Questions[i].ID]
		}
	}

	rrows, err := s.db.QueryContext(ctx, `
		SELECT id, test_id, min_score, max_score, label, text_ru, text_kz
		FROM test_result_rules WHERE test_id=$1 ORDER BY id ASC;`, testID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rrows.Close() }()
	for rrows.Next() {
		var r ResultRule
		if err := rrows.Scan(&r.ID, &r.TestID, &r.MinScore, &r.MaxScore, &r.Label, &r.TextRu, &r.TextKz); err != nil {
			return nil, err
		}
		d.Rules = append(d.Rules, r)
	}
	return &d, rrows.Err()
}

// FindOverlappingTest returns the first test whose age range intersects
// [ageFrom, ageTo), ignoring excludeID. Nil when no overlap exists.
func (s *Store) FindOverlappingTest(ctx context.Context, ageFrom, ageTo int, excludeID int64) (*Test, error) {
	tests, err := s.ListTests(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		if t.ID == excludeID {
			continue
		}
		if ageFrom < t.AgeTo && t.AgeFrom < ageTo {
			return &t, nil
		}
	}
	return nil, nil
}

// CreateTest inserts a test with its questions, answers and rules in one
// transaction and returns the new test id.
func (s *Store) CreateTest(ctx context.Context, in TestInput) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create test: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	testID, err := s.insertReturningID(ctx, tx, `
		INSERT INTO tests(name, age_from, age_to, created_at, updated_at)
		VALUES($1, $2, $3, $4, $4)`, in.Name, in.AgeFrom, in.AgeTo, now)
	if err != nil {
		return 0, fmt.Errorf("insert test: %w", err)
	}

	if err := s.insertTestChildren(ctx, tx, testID, in, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create test: %w", err)
	}
	return testID, nil
}

// UpdateTest replaces a test's content transactionally: the previous
// questions, answers and rules are deleted and reinserted from the input.
func (s *Store) UpdateTest(ctx context.Context, testID int64, in TestInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update test: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE tests SET name=$1, age_from=$2, age_to=$3, updated_at=$4
		WHERE id=$5;`, in.Name, in.AgeFrom, in.AgeTo, now, testID)
	if err != nil {
		return fmt.Errorf("update test: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTestNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM answers WHERE question_id IN (
			SELECT id FROM questions WHERE text_id=$1);`, testID); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE text_id=$1;`, testID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM test_result_rules WHERE test_id=$1;`, testID); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}

	if err := s.insertTestChildren(ctx, tx, testID, in, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update test: %w", err)
	}
	return nil
}

func (s *Store) insertTestChildren(ctx context.Context, tx *sql.Tx, testID int64, in TestInput, now time.Time) error {
	for _, q := range in.Questions {
		questionID, err := s.insertReturningID(ctx, tx, `
			INSERT INTO questions(text_id, text_ru, text_kz, text_en)
			VALUES($1, $2, $3, NULL)`, testID, q.TextRu, q.TextKz)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for _, a := range q.Answers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO answers(question_id, text_ru, text_kz, text_en, points)
				VALUES($1, $2, $3, NULL, $4);`, questionID, a.TextRu, a.TextKz, a.Points); err != nil {
				return fmt.Errorf("insert answer: %w", err)
			}
		}
	}
	for _, r := range in.Rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO test_result_rules(test_id, min_score, max_score, label, text_ru, text_kz, created_at, updated_at)
			VALUES($1, $2, $3, $4, $5, $6, $7, $7);`,
			testID, r.MinScore, r.MaxScore, r.Label, r.TextRu, r.TextKz, now); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return nil
}

// insertReturningID handles the postgres/sqlite split for returning the
// generated id of an insert.
func (s *Store) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		err := tx.QueryRowContext(ctx, query+" RETURNING id;", args...).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, query+";", args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
