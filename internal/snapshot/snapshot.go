// Package snapshot exports periodic copies of the engine state to history
// stores. Snapshots are written, never read back into the engine.
package snapshot

import (
	"fmt"
	"log"
	"sort"
	"time"

	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/flowengine"
)

// Snapshot is a point-in-time copy of the engine state.
type Snapshot struct {
	Timestamp time.Time
	Flows     []flowengine.FlowView
	Hosts     []flowengine.HostView
	Totals    flowengine.Totals
}

// Take copies the current state of e.
func Take(e *flowengine.Engine, now time.Time) *Snapshot {
	return &Snapshot{
		Timestamp: now,
		Flows:     e.Flows(),
		Hosts:     e.Hosts(),
		Totals:    e.Totals(),
	}
}

// Writer persists snapshots on its own interval.
type Writer interface {
	Name() string
	Interval() time.Duration
	Write(snap *Snapshot) error
	Close() error
}

// Factory builds a writer from its definition.
type Factory func(def config.WriterDef, cfg *config.Config) (Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]Factory)

// Register makes a writer type available to Create.
func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types.
func Types() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled writer of cfg. Writers created before a
// failure are closed.
func Create(cfg *config.Config) ([]Writer, error) {
	var writers []Writer
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating snapshot writer of type '%s'.", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}
		w, err := factory(def, cfg)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func closeAll(writers []Writer) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.Printf("Error closing writer %s: %v", w.Name(), err)
		}
	}
}
