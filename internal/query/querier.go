// Package query reads flow history back from ClickHouse.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"Go2NetTop/internal/config"
)

// TopRequest asks for the busiest protocols or talkers over a time range.
type TopRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// GroupBy is "protocol" or "src_ip".
	GroupBy  string `json:"group_by"`
	Protocol string `json:"protocol,omitempty"`
	Limit    int    `json:"limit"`
}

// TopEntry is one row of a TopRequest result.
type TopEntry struct {
	Key     string `json:"key"`
	Bytes   uint64 `json:"bytes"`
	Packets uint64 `json:"packets"`
	Flows   uint64 `json:"flows"`
}

// TraceRequest identifies one flow by its tuple.
type TraceRequest struct {
	SrcIP   string    `json:"src_ip"`
	DstIP   string    `json:"dst_ip"`
	SrcPort uint16    `json:"src_port"`
	DstPort uint16    `json:"dst_port"`
	End     time.Time `json:"end"`
}

// FlowLifecycle summarises the recorded history of one flow.
type FlowLifecycle struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Protocol  string    `json:"protocol"`
	Packets   uint64    `json:"packets"`
	Bytes     uint64    `json:"bytes"`
	Snapshots uint64    `json:"snapshots"`
}

// Querier defines the interface for querying flow history.
type Querier interface {
	Top(ctx context.Context, req TopRequest) ([]TopEntry, error)
	TraceFlow(ctx context.Context, req TraceRequest) (*FlowLifecycle, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// buildTopQuery builds the aggregation query for req. Each flow contributes
// its latest snapshot in the range.
func buildTopQuery(req TopRequest) (string, []any, error) {
	var groupCol string
	switch req.GroupBy {
	case "", "protocol":
		groupCol = "Protocol"
	case "src_ip":
		groupCol = "SrcIP"
	default:
		return "", nil, fmt.Errorf("unsupported group_by: %s, only protocol and src_ip are allowed", req.GroupBy)
	}

	var whereClauses []string
	var args []any
	if !req.Start.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, req.Start)
	}
	if !req.End.IsZero() {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, req.End)
	}
	if req.Protocol != "" {
		whereClauses = append(whereClauses, "Protocol = ?")
		args = append(args, req.Protocol)
	}

	var qb strings.Builder
	qb.WriteString(`
		SELECT
			Key,
			SUM(LatestBytes) AS TotalBytes,
			SUM(LatestPackets) AS TotalPackets,
			COUNT(*) AS FlowCount
		FROM (
			SELECT
				` + groupCol + ` AS Key,
				argMax(Bytes, Timestamp) AS LatestBytes,
				argMax(Packets, Timestamp) AS LatestPackets
			FROM flow_snapshots`)
	if len(whereClauses) > 0 {
		qb.WriteString("\n\t\t\tWHERE " + strings.Join(whereClauses, " AND "))
	}
	qb.WriteString(`
			GROUP BY Key, L4Proto, SrcIP, DstIP, SrcPort, DstPort
		)
		GROUP BY Key
		ORDER BY TotalBytes DESC`)

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	qb.WriteString(fmt.Sprintf("\n\t\tLIMIT %d", limit))
	return qb.String(), args, nil
}

// Top returns the busiest keys of req.GroupBy.
func (q *clickhouseQuerier) Top(ctx context.Context, req TopRequest) ([]TopEntry, error) {
	query, args, err := buildTopQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var entries []TopEntry
	for rows.Next() {
		var e TopEntry
		if err := rows.Scan(&e.Key, &e.Bytes, &e.Packets, &e.Flows); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation result: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func buildTraceQuery(req TraceRequest) (string, []any, error) {
	if req.SrcIP == "" || req.DstIP == "" || req.SrcPort == 0 || req.DstPort == 0 {
		return "", nil, fmt.Errorf("trace needs src_ip, dst_ip, src_port and dst_port")
	}

	whereClauses := []string{"SrcIP = ?", "DstIP = ?", "SrcPort = ?", "DstPort = ?"}
	args := []any{req.SrcIP, req.DstIP, req.SrcPort, req.DstPort}
	if !req.End.IsZero() {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, req.End)
	}

	query := `
		SELECT
			min(Timestamp) AS FirstSeen,
			max(LastSeen) AS LastSeen,
			argMax(Protocol, Timestamp) AS Protocol,
			max(Packets) AS TotalPackets,
			max(Bytes) AS TotalBytes,
			count() AS Snapshots
		FROM flow_snapshots
		WHERE ` + strings.Join(whereClauses, " AND ")
	return query, args, nil
}

// TraceFlow executes a query to trace the lifecycle of a single flow.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, req TraceRequest) (*FlowLifecycle, error) {
	query, args, err := buildTraceQuery(req)
	if err != nil {
		return nil, err
	}

	var result FlowLifecycle
	row := q.conn.QueryRow(ctx, query, args...)
	if err := row.Scan(&result.FirstSeen, &result.LastSeen, &result.Protocol,
		&result.Packets, &result.Bytes, &result.Snapshots); err != nil {
		return nil, fmt.Errorf("failed to scan flow lifecycle result: %w", err)
	}
	return &result, nil
}
