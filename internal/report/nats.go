package report

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// NATSSink publishes records as protobuf Structs on a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	failed  atomic.Uint64
}

// NewNATSSink connects to url and publishes on subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("nettop-report"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Printf("Report sink connected to NATS server at %s", url)
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Emit publishes rec. The NATS client buffers outgoing messages, so this
// does not wait for the network.
func (s *NATSSink) Emit(rec FlowRecord) {
	data, err := MarshalRecord(rec)
	if err == nil {
		err = s.nc.Publish(s.subject, data)
	}
	if err != nil && s.failed.Add(1) == 1 {
		log.Printf("Failed to publish flow record to '%s': %v", s.subject, err)
	}
}

// Failed returns how many records could not be published.
func (s *NATSSink) Failed() uint64 {
	return s.failed.Load()
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Printf("Error draining NATS connection: %v", err)
		}
	}
}

// MarshalRecord encodes rec into the wire form used on NATS.
func MarshalRecord(rec FlowRecord) ([]byte, error) {
	st, err := rec.ToStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow record: %w", err)
	}
	return proto.Marshal(st)
}

// UnmarshalRecord decodes the wire form produced by MarshalRecord.
func UnmarshalRecord(data []byte) (FlowRecord, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return FlowRecord{}, fmt.Errorf("failed to unmarshal flow record: %w", err)
	}
	return FlowRecordFromStruct(&st)
}

// SubscribeRecords delivers every record published on subject to fn.
func SubscribeRecords(nc *nats.Conn, subject string, fn func(FlowRecord)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		rec, err := UnmarshalRecord(msg.Data)
		if err != nil {
			log.Printf("Error decoding flow record: %v", err)
			return
		}
		fn(rec)
	})
}
