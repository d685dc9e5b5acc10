package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/protocol"
	"Go2NetTop/internal/probe"
	"Go2NetTop/internal/probe/persistent"
	"Go2NetTop/pkg/pcap"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from, overriding the configuration.")
	flag.Parse()

	cfg, err := config.Decode(readConfig(*configPath))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		runProbe(ctx, cfg)
	case "sub":
		runSubscriber(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

func readConfig(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("No configuration at %s, using defaults.", path)
		return nil
	}
	return data
}

// runProbe captures frames and publishes them to NATS.
func runProbe(ctx context.Context, cfg *config.Config) {
	if cfg.Capture.Interface == "" {
		log.Println("Error: an interface is required for probe mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Starting nettop-probe in PROBE mode on interface: %s", cfg.Capture.Interface)

	src, err := pcap.NewLiveSource(pcap.LiveOptions{
		Interface:   cfg.Capture.Interface,
		Snaplen:     cfg.Capture.Snaplen,
		Promiscuous: cfg.Capture.Promiscuous,
		BPFFilter:   cfg.Capture.BPFFilter,
		ReadTimeout: cfg.Capture.ReadTimeout.D(),
	})
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer src.Close()

	pub, err := probe.NewPublisher(cfg.Probe, src.LinkType())
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	var recorder *persistent.Recorder
	if cfg.Probe.Record.Enabled {
		recorder, err = persistent.NewRecorder(cfg.Probe.Record, src.LinkType(), uint32(cfg.Capture.Snaplen))
		if err != nil {
			log.Fatalf("Failed to start recorder: %v", err)
		}
		defer func() {
			if err := recorder.Stop(); err != nil {
				log.Printf("Recorder failed: %v", err)
			}
		}()
	}

	frames := make(chan pcap.Frame, cfg.Capture.BufferSize)
	go func() {
		defer close(frames)
		if err := src.ReadPackets(ctx, frames); err != nil {
			log.Printf("Capture failed: %v", err)
		}
	}()

	log.Println("Capture started successfully. Publishing frames to NATS...")
	published := 0
	for frame := range frames {
		if err := pub.Publish(frame); err != nil {
			log.Printf("Failed to publish frame: %v", err)
			continue
		}
		if recorder != nil {
			recorder.Enqueue(frame)
		}
		published++
		if published%1000 == 0 {
			log.Printf("%d frames published...", published)
		}
	}
	log.Printf("Shutdown signal received, %d frames published.", published)
}

// runSubscriber prints the tuple of every frame received from NATS.
func runSubscriber(ctx context.Context, cfg *config.Config) {
	log.Println("Starting nettop-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg.Probe, cfg.Capture.BufferSize)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	parser := protocol.NewParser(sub.LinkType())
	frames := make(chan pcap.Frame, cfg.Capture.BufferSize)
	go func() {
		defer close(frames)
		if err := sub.ReadPackets(ctx, frames); err != nil {
			log.Printf("Subscriber failed: %v", err)
		}
	}()

	for frame := range frames {
		if pkt, ok := parser.Parse(frame.Data); ok {
			log.Printf("Received frame: %s, %d bytes", pkt.Tuple, frame.Header.WireLength)
		} else {
			log.Printf("Received frame without a tuple, %d bytes", frame.Header.WireLength)
		}
	}
	log.Printf("Shutdown signal received, %d frames rejected.", sub.Rejected())
}
