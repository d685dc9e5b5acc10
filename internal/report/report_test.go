package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go2NetTop/internal/core/model"
)

func sampleRecord() FlowRecord {
	return FlowRecord{
		Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC),
		Tuple:          model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 0xC0A80001, DstAddr: 0x08080808, SrcPort: 51000, DstPort: 443},
		Protocol:       "TLS.Google",
		Completed:      true,
		Src2DstPackets: 5,
		Dst2SrcPackets: 4,
		Src2DstBytes:   1200,
		Dst2SrcBytes:   64000,
	}
}

func TestRecordWireForm(t *testing.T) {
	rec := sampleRecord()

	data, err := MarshalRecord(rec)
	require.NoError(t, err)

	got, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(got.Timestamp))
	got.Timestamp = rec.Timestamp
	assert.Equal(t, rec, got)
	assert.Equal(t, uint64(9), got.Packets())
	assert.Equal(t, uint64(65200), got.Bytes())
}

func TestUnmarshalRecordRejectsGarbage(t *testing.T) {
	_, err := UnmarshalRecord([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestMultiSink(t *testing.T) {
	var a, b []FlowRecord
	sink := MultiSink{
		Func(func(r FlowRecord) { a = append(a, r) }),
		Discard,
		LogSink{},
		Func(func(r FlowRecord) { b = append(b, r) }),
	}

	sink.Emit(sampleRecord())
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.Contains(t, a[0].String(), "TLS.Google")
}
