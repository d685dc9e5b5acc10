package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"Go2NetTop/internal/engine/flowengine"
	"Go2NetTop/internal/rpc"
	"Go2NetTop/internal/ui"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "Address of the nettop gRPC server.")
	cmd := flag.String("cmd", "flows", "What to show: flows, hosts or totals.")
	sortBy := flag.String("sort", "bytes", "Ordering: bytes, packets or throughput.")
	limit := flag.Int("limit", 20, "Maximum number of rows.")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout.")
	flag.Parse()

	client, err := rpc.NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req := rpc.ListRequest{Sort: *sortBy, Limit: *limit}
	switch *cmd {
	case "flows":
		flows, err := client.ListFlows(ctx, req)
		if err != nil {
			log.Fatalf("ListFlows failed: %v", err)
		}
		totals, err := client.Totals(ctx)
		if err != nil {
			log.Fatalf("Totals failed: %v", err)
		}
		by, _ := flowengine.ParseSortKey(*sortBy)
		fmt.Println(ui.Render(flows, totals, by, *limit))
	case "hosts":
		hosts, err := client.ListHosts(ctx, req)
		if err != nil {
			log.Fatalf("ListHosts failed: %v", err)
		}
		printJSON(hosts)
	case "totals":
		totals, err := client.Totals(ctx)
		if err != nil {
			log.Fatalf("Totals failed: %v", err)
		}
		printJSON(totals)
	default:
		fmt.Fprintf(os.Stderr, "Invalid cmd: %s\n", *cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}
