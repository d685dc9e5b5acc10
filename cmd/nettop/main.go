package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"Go2NetTop/internal/api"
	"Go2NetTop/internal/config"
	"Go2NetTop/internal/dpi"
	"Go2NetTop/internal/engine/flowengine"
	"Go2NetTop/internal/engine/manager"
	"Go2NetTop/internal/engine/protocol"
	"Go2NetTop/internal/logging"
	"Go2NetTop/internal/metrics"
	"Go2NetTop/internal/probe"
	"Go2NetTop/internal/query"
	"Go2NetTop/internal/report"
	"Go2NetTop/internal/rpc"
	_ "Go2NetTop/internal/snapshot" // Registers the snapshot writers
	"Go2NetTop/internal/ui"
	"Go2NetTop/pkg/pcap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Capture live from this interface, overriding the configuration.")
	file := flag.String("file", "", "Replay this capture file, overriding the configuration.")
	debug := flag.Bool("debug", false, "Enable debug logging.")
	flag.Parse()

	log.Println("Starting nettop...")

	cfg, err := loadConfig(*configPath, *iface, *file)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.SetDebug(*debug || cfg.Logging.Debug)
	log.Println("Configuration loaded successfully.")

	src, err := openSource(cfg)
	if err != nil {
		log.Fatalf("Failed to open capture source: %v", err)
	}
	defer src.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New()
	if err := rec.Register(reg); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	sink, closeSink := buildSink(cfg)
	defer closeSink()

	engine := flowengine.New(manager.EngineConfig(cfg), protocol.NewParser(src.LinkType()), dpi.NewInspector(), sink, rec)

	mgr, err := manager.NewManager(cfg, engine)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var apiServer *api.Server
	if cfg.API.Enabled {
		var querier query.Querier
		if cfg.API.History {
			if querier, err = query.NewClickHouseQuerier(cfg.ClickHouse); err != nil {
				log.Fatalf("Failed to create querier: %v", err)
			}
		}
		apiServer = api.NewServer(cfg.API, engine, querier, reg)
		apiServer.Start()
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		lis, err := net.Listen("tcp", cfg.RPC.ListenAddr)
		if err != nil {
			log.Fatalf("Could not listen on %s: %v", cfg.RPC.ListenAddr, err)
		}
		rpcServer = rpc.NewServer(engine)
		go func() {
			if err := rpcServer.Serve(lis); err != nil {
				log.Printf("gRPC server failed: %v", err)
			}
		}()
	}

	if cfg.UI.Enabled {
		go ui.Run(ctx, os.Stdout, engine, cfg.UI.Interval.D(), cfg.UI.Top)
	}

	// Reading stops on a signal or, for file replay, at the end of the file.
	consumed := make(chan error, 1)
	go func() {
		consumed <- mgr.Consume(ctx, src)
	}()

	select {
	case err := <-consumed:
		if err != nil {
			log.Printf("Capture source failed: %v", err)
		} else {
			log.Println("Capture source exhausted.")
		}
		stop()
	case <-ctx.Done():
		log.Println("Shutdown signal received, stopping...")
		<-consumed
	}

	mgr.Stop()
	if live, ok := src.(*pcap.LiveSource); ok {
		if received, dropped, err := live.Stats(); err == nil {
			log.Printf("Capture statistics: %d received, %d dropped by the kernel.", received, dropped)
		}
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server forced to shutdown: %v", err)
		}
		cancel()
	}
	if rpcServer != nil {
		rpcServer.Stop()
	}

	if cfg.Capture.Source == config.SourceFile && !cfg.UI.Enabled {
		fmt.Println(ui.Render(engine.Flows(), engine.Totals(), flowengine.SortByBytes, cfg.UI.Top))
	}
	log.Println("Shutdown complete.")
}

// loadConfig reads path and applies the command line overrides. The file
// may be missing when an override names the source.
func loadConfig(path, iface, file string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && (!errors.Is(err, os.ErrNotExist) || (iface == "" && file == "")) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := config.Decode(data)
	if err != nil {
		return nil, err
	}
	switch {
	case file != "":
		cfg.Capture.Source = config.SourceFile
		cfg.Capture.File = file
	case iface != "":
		cfg.Capture.Source = config.SourceLive
		cfg.Capture.Interface = iface
	}
	return cfg, cfg.Validate()
}

func openSource(cfg *config.Config) (pcap.Source, error) {
	switch cfg.Capture.Source {
	case config.SourceFile:
		return pcap.NewFileSource(cfg.Capture.File)
	case config.SourceNATS:
		return probe.NewSubscriber(cfg.Probe, cfg.Capture.BufferSize)
	default:
		return pcap.NewLiveSource(pcap.LiveOptions{
			Interface:   cfg.Capture.Interface,
			Snaplen:     cfg.Capture.Snaplen,
			Promiscuous: cfg.Capture.Promiscuous,
			BPFFilter:   cfg.Capture.BPFFilter,
			ReadTimeout: cfg.Capture.ReadTimeout.D(),
		})
	}
}

// buildSink assembles the per-packet record sinks.
func buildSink(cfg *config.Config) (report.Sink, func()) {
	var sinks report.MultiSink
	closeFn := func() {}

	if cfg.Report.Log {
		sinks = append(sinks, report.LogSink{})
	}
	if cfg.Report.NATS.Enabled {
		natsSink, err := report.NewNATSSink(cfg.Report.NATS.URL, cfg.Report.NATS.Subject)
		if err != nil {
			log.Fatalf("Failed to create report sink: %v", err)
		}
		sinks = append(sinks, natsSink)
		closeFn = natsSink.Close
	}

	switch len(sinks) {
	case 0:
		return report.Discard, closeFn
	case 1:
		return sinks[0], closeFn
	}
	return sinks, closeFn
}
