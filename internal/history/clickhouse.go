package history

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseSink sends audit events to ClickHouse using the official
// ClickHouse Go client over the native protocol.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

func NewClickHouseSink(addr, table string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseSink{conn: conn, table: table}, nil
}

func (s *ClickHouseSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *ClickHouseSink) Send(ctx context.Context, e Event) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (action, actor, target, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		s.table)
	err := s.conn.Exec(ctx, query,
		string(e.Action), e.Actor, e.Target, e.Detail, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
