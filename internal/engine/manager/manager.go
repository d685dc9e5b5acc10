// Package manager runs the monitor control loop: it feeds frames to the
// engine, purges idle state, refreshes throughput and drives the snapshot
// writers and the alerter.
package manager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"Go2NetTop/internal/alerter"
	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/flowengine"
	"Go2NetTop/internal/notification"
	"Go2NetTop/internal/snapshot"
	"Go2NetTop/pkg/pcap"
)

// EngineConfig maps the engine section of cfg onto the engine settings.
func EngineConfig(cfg *config.Config) flowengine.Config {
	return flowengine.Config{
		FlowIdleTimeout: cfg.Engine.FlowIdleTimeout.D(),
		HostIdleTimeout: cfg.Engine.HostIdleTimeout.D(),
		MaxFlows:        cfg.Engine.MaxFlows,
		MaxHosts:        cfg.Engine.MaxHosts,
		GiveUpPackets:   cfg.Engine.GiveUpPackets,
	}
}

// Manager orchestrates the engine, its snapshot writers and the alerter.
type Manager struct {
	engine  *flowengine.Engine
	writers []snapshot.Writer
	alerter *alerter.Alerter

	frames chan pcap.Frame
	loopWg sync.WaitGroup

	purgeInterval   time.Duration
	refreshInterval time.Duration
	// With the packet clock, purges and refreshes follow the capture
	// timestamps instead of the wall clock.
	packetClock bool
	lastPurge   time.Time
	lastRefresh time.Time

	done          chan struct{}
	snapshotterWg sync.WaitGroup
}

// NewManager creates a Manager for engine with the writers and alerter
// described by cfg.
func NewManager(cfg *config.Config, engine *flowengine.Engine) (*Manager, error) {
	writers, err := snapshot.Create(cfg)
	if err != nil {
		return nil, err
	}

	var alertr *alerter.Alerter
	if cfg.Alerter.Enabled {
		var notifier notification.Notifier = notification.LogNotifier{}
		if cfg.SMTP.Host != "" {
			notifier = notification.NewEmailNotifier(cfg.SMTP)
		}
		alertr, err = alerter.NewAlerter(&cfg.Alerter, engine, notifier)
		if err != nil {
			for _, w := range writers {
				_ = w.Close()
			}
			return nil, fmt.Errorf("failed to create alerter: %w", err)
		}
		log.Println("Alerter enabled and initialized.")
	}

	return &Manager{
		engine:          engine,
		writers:         writers,
		alerter:         alertr,
		frames:          make(chan pcap.Frame, cfg.Capture.BufferSize),
		purgeInterval:   cfg.Engine.PurgeInterval.D(),
		refreshInterval: cfg.Engine.RefreshInterval.D(),
		packetClock:     cfg.Clock() == config.ClockPacket,
		done:            make(chan struct{}),
	}, nil
}

// Engine returns the managed engine.
func (m *Manager) Engine() *flowengine.Engine {
	return m.engine
}

// InputChannel returns the channel frames are fed into. It is closed by Stop.
func (m *Manager) InputChannel() chan<- pcap.Frame {
	return m.frames
}

// Consume reads src into the input channel until it is exhausted or ctx is
// done.
func (m *Manager) Consume(ctx context.Context, src pcap.Source) error {
	return src.ReadPackets(ctx, m.frames)
}

// Start begins the processing loop, one snapshotter per writer and the
// alerter.
func (m *Manager) Start() {
	for _, writer := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(writer)
		log.Printf("Started snapshotter for writer %s with interval %s.", writer.Name(), writer.Interval())
	}

	if m.alerter != nil {
		m.alerter.Start()
	}

	m.loopWg.Add(1)
	go m.run()
	clock := config.ClockWall
	if m.packetClock {
		clock = config.ClockPacket
	}
	log.Printf("Manager started, purging every %s and refreshing every %s on the %s clock.",
		m.purgeInterval, m.refreshInterval, clock)
}

func (m *Manager) run() {
	defer m.loopWg.Done()

	var purge, refresh <-chan time.Time
	if !m.packetClock {
		purgeTicker := time.NewTicker(m.purgeInterval)
		defer purgeTicker.Stop()
		refreshTicker := time.NewTicker(m.refreshInterval)
		defer refreshTicker.Stop()
		purge, refresh = purgeTicker.C, refreshTicker.C
	}

	for {
		select {
		case frame, ok := <-m.frames:
			if !ok {
				return
			}
			m.engine.ProcessPacket(frame.Header, frame.Data)
			if m.packetClock {
				m.advance(m.engine.LastPacketTime())
			}
		case now := <-purge:
			m.engine.PurgeIdle(now)
		case now := <-refresh:
			m.engine.UpdateThroughput(now)
		}
	}
}

// advance runs the periodic work that became due at packet time now.
func (m *Manager) advance(now time.Time) {
	if now.IsZero() {
		return
	}
	if m.lastPurge.IsZero() {
		m.lastPurge, m.lastRefresh = now, now
		return
	}
	if now.Sub(m.lastRefresh) >= m.refreshInterval {
		m.engine.UpdateThroughput(now)
		m.lastRefresh = now
	}
	if now.Sub(m.lastPurge) >= m.purgeInterval {
		m.engine.PurgeIdle(now)
		m.lastPurge = now
	}
}

// now is the time snapshots are stamped with.
func (m *Manager) now() time.Time {
	if m.packetClock {
		if ts := m.engine.LastPacketTime(); !ts.IsZero() {
			return ts
		}
	}
	return time.Now()
}

// runSnapshotter runs a dedicated snapshot loop for a single writer.
func (m *Manager) runSnapshotter(writer snapshot.Writer) {
	defer m.snapshotterWg.Done()

	ticker := time.NewTicker(writer.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshot(writer)
		case <-m.done:
			m.takeSnapshot(writer)
			return
		}
	}
}

func (m *Manager) takeSnapshot(writer snapshot.Writer) {
	snap := snapshot.Take(m.engine, m.now())
	if err := writer.Write(snap); err != nil {
		log.Printf("Error writing snapshot to %s: %v", writer.Name(), err)
		return
	}
	log.Printf("Wrote snapshot of %d flows and %d hosts to %s.", len(snap.Flows), len(snap.Hosts), writer.Name())
}

// Stop gracefully shuts down the manager. No frame may be sent to the input
// channel once Stop has been called.
func (m *Manager) Stop() {
	log.Println("Manager stopping...")
	// 1. Stop accepting new frames and drain the buffered ones.
	close(m.frames)
	m.loopWg.Wait()

	// 2. Signal snapshotters to take their final snapshot and exit.
	close(m.done)
	log.Println("Waiting for snapshotters to finish...")
	m.snapshotterWg.Wait()

	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			log.Printf("Error closing writer %s: %v", w.Name(), err)
		}
	}

	// 3. Stop the alerter if it's running.
	if m.alerter != nil {
		m.alerter.Stop()
	}

	log.Println("Manager stopped.")
}
