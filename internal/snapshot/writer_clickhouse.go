package snapshot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/flowengine"
)

// FlowTable is the ClickHouse table flow snapshots are written to.
const FlowTable = "flow_snapshots"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_snapshots (
    Timestamp     DateTime,
    L4Proto       LowCardinality(String),
    SrcIP         String,
    DstIP         String,
    SrcPort       UInt16,
    DstPort       UInt16,
    Protocol      LowCardinality(String),
    SNI           String,
    Src2DstBytes  UInt64,
    Dst2SrcBytes  UInt64,
    Packets       UInt64,
    Bytes         UInt64,
    ThroughputBps Float64,
    LastSeen      DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, SrcIP, DstIP, SrcPort, DstPort);
`

func init() {
	Register("clickhouse", func(def config.WriterDef, cfg *config.Config) (Writer, error) {
		return NewClickHouseWriter(cfg.ClickHouse, def.Interval.D())
	})
}

// ClickHouseWriter inserts every flow of a snapshot as one row.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects to ClickHouse and creates the table if needed.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return newClickHouseWriter(conn, interval), nil
}

func newClickHouseWriter(conn driver.Conn, interval time.Duration) *ClickHouseWriter {
	return &ClickHouseWriter{conn: conn, interval: interval}
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
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
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

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

// Interval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) Interval() time.Duration {
	return w.interval
}

// Write inserts the snapshot's flows in one batch.
func (w *ClickHouseWriter) Write(snap *Snapshot) error {
	if len(snap.Flows) == 0 {
		return nil
	}

	ctx := context.Background()
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+FlowTable)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, f := range snap.Flows {
		if err := batch.Append(flowRow(snap.Timestamp, f)...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d flows to ClickHouse.", len(snap.Flows))
	return nil
}

// flowRow lays a flow out in the column order of the flow table.
func flowRow(ts time.Time, f flowengine.FlowView) []any {
	return []any{
		ts,
		f.L4Proto,
		f.SrcIP.String(),
		f.DstIP.String(),
		f.SrcPort,
		f.DstPort,
		f.Protocol,
		f.SNI,
		f.Stats.Src2DstBytes,
		f.Stats.Dst2SrcBytes,
		f.Stats.Packets,
		f.Stats.Bytes,
		f.Stats.Throughput,
		f.Stats.LastSeen,
	}
}

// Close closes the ClickHouse connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
