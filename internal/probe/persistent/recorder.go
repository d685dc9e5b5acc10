// Package persistent keeps a pcap copy of the frames a probe publishes.
package persistent

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"Go2NetTop/internal/config"
	"Go2NetTop/pkg/pcap"
)

// Recorder writes frames to a timestamped pcap file from a single goroutine.
type Recorder struct {
	frames  chan pcap.Frame
	file    *os.File
	buf     *bufio.Writer
	writer  *pcapgo.Writer
	wg      sync.WaitGroup
	dropped uint64
}

// NewRecorder creates the output file under cfg.Path and starts the writer.
func NewRecorder(cfg config.RecordConfig, linkType layers.LinkType, snaplen uint32) (*Recorder, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	fileName := time.Now().Format("2006-01-02_15-04-05") + ".pcap"
	file, err := os.OpenFile(filepath.Join(cfg.Path, fileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create record file: %w", err)
	}

	buf := bufio.NewWriter(file)
	writer := pcapgo.NewWriter(buf)
	if err := writer.WriteFileHeader(snaplen, linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap file header: %w", err)
	}

	r := &Recorder{
		frames: make(chan pcap.Frame, bufferSize),
		file:   file,
		buf:    buf,
		writer: writer,
	}
	r.wg.Add(1)
	go r.run()

	log.Printf("Recorder started, writing to: %s", file.Name())
	return r, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.file.Name()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for frame := range r.frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     frame.Header.Timestamp,
			CaptureLength: len(frame.Data),
			Length:        int(frame.Header.WireLength),
		}
		if ci.Length < ci.CaptureLength {
			ci.Length = ci.CaptureLength
		}
		if err := r.writer.WritePacket(ci, frame.Data); err != nil {
			log.Printf("Recorder: Error writing packet: %v", err)
		}
	}
}

// Enqueue hands a frame to the writer. Frames are dropped when the buffer is
// full.
func (r *Recorder) Enqueue(frame pcap.Frame) {
	select {
	case r.frames <- frame:
	default:
		r.dropped++
		if r.dropped == 1 {
			log.Println("Recorder: Channel is full, dropping packets.")
		}
	}
}

// Stop flushes every queued frame and closes the file. Enqueue must not be
// called afterwards.
func (r *Recorder) Stop() error {
	close(r.frames)
	r.wg.Wait()

	if err := r.buf.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush record file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	log.Printf("Recorder stopped, %d frames dropped.", r.dropped)
	return nil
}
