package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"Go2NetTop/internal/engine/flowengine"
	"Go2NetTop/internal/snapshot"
	"Go2NetTop/internal/ui"
)

func main() {
	top := flag.Int("top", 20, "Number of flows to show")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/gobana [-top N] <snapshot_dir>")
		os.Exit(1)
	}

	snap, err := snapshot.ReadGob(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}

	fmt.Printf("Snapshot taken at %s\n", snap.Timestamp.Format(snapshot.TimestampLayout))
	fmt.Println(ui.Render(snap.Flows, snap.Totals, flowengine.SortByBytes, *top))
}
