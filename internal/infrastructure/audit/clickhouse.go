// Package audit implements the optional fire-and-forget audit sink on
// ClickHouse. Match computations land as append-only events for
// observability; a notify failure never fails the request that produced it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/mealmatch/backend/internal/domain"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// ClickHouseSink writes audit events to an append-only ClickHouse table
type ClickHouseSink struct {
	conn clickhouse.Conn
}

// NewClickHouseSink connects to ClickHouse and verifies connectivity
func NewClickHouseSink(config Config) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseSink{conn: conn}, nil
}

// Notify appends one audit event
func (s *ClickHouseSink) Notify(ctx context.Context, event domain.AuditEvent) error {
	const query = `
		INSERT INTO audit_events (id, action, entity, vendor_id, customer_id, count, k, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return s.conn.Exec(ctx, query,
		event.ID,
		event.Action,
		event.Entity,
		event.VendorID,
		event.CustomerID,
		uint32(event.Count),
		uint32(event.K),
		event.OccurredAt,
	)
}

// Close closes the connection
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
