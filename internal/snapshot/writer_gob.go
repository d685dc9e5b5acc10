package snapshot

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/flowengine"
)

// TimestampLayout names snapshot directories.
const TimestampLayout = "2006-01-02_15-04-05"

func init() {
	Register("gob", func(def config.WriterDef, _ *config.Config) (Writer, error) {
		if def.RootPath == "" {
			return nil, fmt.Errorf("gob writer needs a root_path")
		}
		return NewGobWriter(def.RootPath, def.Interval.D()), nil
	})
}

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	Timestamp    string            `json:"timestamp"`
	TotalFlows   int               `json:"total_flows"`
	TotalHosts   int               `json:"total_hosts"`
	TotalBytes   uint64            `json:"total_bytes"`
	TotalPackets uint64            `json:"total_packets"`
	Totals       flowengine.Totals `json:"engine_totals"`
}

// GobWriter writes each snapshot into its own timestamped directory:
// flows.gob, hosts.gob and summary.json.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a gob writer rooted at rootPath.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

func (w *GobWriter) Name() string { return "gob" }

// Interval returns the configured snapshot interval for this writer.
func (w *GobWriter) Interval() time.Duration {
	return w.interval
}

// Write serializes the snapshot to disk.
func (w *GobWriter) Write(snap *Snapshot) error {
	dir := filepath.Join(w.rootPath, snap.Timestamp.Format(TimestampLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := writeGob(filepath.Join(dir, "flows.gob"), snap.Flows); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(dir, "hosts.gob"), snap.Hosts); err != nil {
		return err
	}

	summary := SummaryData{
		Timestamp:  snap.Timestamp.UTC().Format(time.RFC3339),
		TotalFlows: len(snap.Flows),
		TotalHosts: len(snap.Hosts),
		Totals:     snap.Totals,
	}
	for _, f := range snap.Flows {
		summary.TotalBytes += f.Stats.Bytes
		summary.TotalPackets += f.Stats.Packets
	}

	summaryFile, err := os.Create(filepath.Join(dir, "summary.json"))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

func writeGob(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		return fmt.Errorf("failed to encode gob for file '%s': %w", path, err)
	}
	return nil
}

// ReadGob loads a snapshot directory written by GobWriter for inspection.
func ReadGob(dir string) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := readGob(filepath.Join(dir, "flows.gob"), &snap.Flows); err != nil {
		return nil, err
	}
	if err := readGob(filepath.Join(dir, "hosts.gob"), &snap.Hosts); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary file: %w", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary file: %w", err)
	}
	snap.Totals = summary.Totals
	if snap.Timestamp, err = time.Parse(time.RFC3339, summary.Timestamp); err != nil {
		return nil, fmt.Errorf("bad summary timestamp: %w", err)
	}
	return snap, nil
}

func readGob(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("failed to decode gob file '%s': %w", path, err)
	}
	return nil
}

// Close is a no-op; every Write closes its files.
func (w *GobWriter) Close() error {
	return nil
}
