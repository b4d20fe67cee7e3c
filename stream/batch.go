package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Message is one addressed update, e.g. /track/3/xyz with three floats.
type Message struct {
	Address string    `json:"address"`
	Args    []float32 `json:"args"`
}

// Batch is everything sent in one period.
type Batch struct {
	Seq      uint64
	Time     time.Time
	Messages []Message
}

const batchMagic = 0x5358 // "SX"

// MarshalBinary encodes the batch for byte-oriented transports: a header
// of magic, sequence number, unix-nano time and message count, then each
// message as a length-prefixed address and length-prefixed float32 args.
// All integers are little endian.
func (b Batch) MarshalBinary() ([]byte, error) {
	if len(b.Messages) > math.MaxUint16 {
		return nil, fmt.Errorf("batch of %d messages is too large", len(b.Messages))
	}
	data := make([]byte, 20, 20+len(b.Messages)*24)
	binary.LittleEndian.PutUint16(data[0:], batchMagic)
	binary.LittleEndian.PutUint64(data[2:], b.Seq)
	binary.LittleEndian.PutUint64(data[10:], uint64(b.Time.UnixNano()))
	binary.LittleEndian.PutUint16(data[18:], uint16(len(b.Messages)))
	for _, m := range b.Messages {
		if len(m.Address) > math.MaxUint8 || len(m.Args) > math.MaxUint8 {
			return nil, fmt.Errorf("message %s is too large", m.Address)
		}
		data = append(data, byte(len(m.Address)))
		data = append(data, m.Address...)
		data = append(data, byte(len(m.Args)))
		for _, a := range m.Args {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(a))
		}
	}
	return data, nil
}

var errShortBatch = errors.New("batch: truncated data")

// UnmarshalBinary decodes data produced by MarshalBinary.
func (b *Batch) UnmarshalBinary(data []byte) error {
	if len(data) < 20 {
		return errShortBatch
	}
	if binary.LittleEndian.Uint16(data) != batchMagic {
		return errors.New("batch: bad magic")
	}
	b.Seq = binary.LittleEndian.Uint64(data[2:])
	b.Time = time.Unix(0, int64(binary.LittleEndian.Uint64(data[10:])))
	n := int(binary.LittleEndian.Uint16(data[18:]))
	b.Messages = make([]Message, 0, n)
	data = data[20:]
	for i := 0; i < n; i++ {
		if len(data) < 1 {
			return errShortBatch
		}
		al := int(data[0])
		if len(data) < 2+al {
			return errShortBatch
		}
		m := Message{Address: string(data[1 : 1+al])}
		argc := int(data[1+al])
		data = data[2+al:]
		if len(data) < 4*argc {
			return errShortBatch
		}
		m.Args = make([]float32, argc)
		for j := range m.Args {
			m.Args[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*j:]))
		}
		data = data[4*argc:]
		b.Messages = append(b.Messages, m)
	}
	return nil
}
