package store

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	ResetRuntimeEnsured()
	s, err := OpenFromDSN(connStr)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = s.Close() }()

	if s.Dialect() != DialectPostgres {
		t.Fatalf("dialect %q", s.Dialect())
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	// Admin auth round trip.
	adminID, err := s.CreateAdmin(ctx, "ops@example.com", "hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	admin, err := s.GetAdminByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if admin.ID != adminID {
		t.Fatalf("admin id %d != %d", admin.ID, adminID)
	}

	// Catalog insert exercises the RETURNING path.
	testID, err := s.CreateTest(ctx, TestInput{
		Name: "Развитие речи", AgeFrom: 3, AgeTo: 6,
		Questions: []QuestionInput{{
			TextRu: "Вопрос", TextKz: "Сұрақ",
			Answers: []AnswerInput{
				{TextRu: "Да", TextKz: "Иә", Points: 2},
				{TextRu: "Нет", TextKz: "Жоқ", Points: 0},
			},
		}},
		Rules: []RuleInput{{MinScore: 0, MaxScore: 2, Label: "Норма", TextRu: "Т", TextKz: "Т"}},
	})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	detail, err := s.GetTestDetail(ctx, testID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if len(detail.Questions) != 1 || len(detail.Questions[0].Answers) != 2 || len(detail.Rules) != 1 {
		t.Fatalf("detail: %+v", detail)
	}

	overlap, err := s.FindOverlappingTest(ctx, 5, 8, 0)
	if err != nil {
		t.Fatalf("overlap: %v", err)
	}
	if overlap == nil || overlap.ID != testID {
		t.Fatalf("expected overlap with %d, got %+v", testID, overlap)
	}

	// Runtime mailbox round trip.
	if err := s.EnsureRuntime(ctx); err != nil {
		t.Fatalf("ensure runtime: %v", err)
	}
	if err := s.WriteControlCommand(ctx, "connect", "tok-1"); err != nil {
		t.Fatalf("write command: %v", err)
	}
	rs, err := s.ReadRuntime(ctx)
	if err != nil {
		t.Fatalf("read runtime: %v", err)
	}
	if rs.ControlAction.String != "connect" || rs.ControlToken.String != "tok-1" {
		t.Fatalf("runtime: %+v", rs)
	}

	// Daily counts exercise the date_trunc path.
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO parents(fullname, phone, created_at)
		VALUES('Айгуль Смагулова', '+77010000001', $1);`,
		time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed parent: %v", err)
	}
	counts, err := s.ParentDailyCounts(ctx)
	if err != nil {
		t.Fatalf("daily counts: %v", err)
	}
	if len(counts) != 1 || counts[0].Date != "2026-02-10" || counts[0].Count != 1 {
		t.Fatalf("counts: %+v", counts)
	}
}
