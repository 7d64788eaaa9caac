// Package history records how continuous entity fields change inside a step
// so clients can replay interpolated motion between persisted snapshots.
package history

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const packVersion = 1

var (
	ErrFieldCount = errors.New("history: value count does not match field count")
	ErrBadPacking = errors.New("history: malformed buffer")
)

// Field describes one tracked attribute. Values are quantized to
// 1/2^Precision before comparison, so jitter below that resolution does not
// produce samples.
type Field struct {
	Name      string `json:"name"`
	Precision uint   `json:"precision"`
}

type Sample struct {
	Time  int64   `json:"t"`
	Value float64 `json:"v"`
}

type FieldHistory struct {
	Field
	Initial float64  `json:"initial"`
	Samples []Sample `json:"samples"`
}

type Buffer struct {
	start  int64
	fields []FieldHistory
	last   []int64
}

func New(fields []Field) *Buffer {
	b := &Buffer{
		fields: make([]FieldHistory, len(fields)),
		last:   make([]int64, len(fields)),
	}
	for i, f := range fields {
		b.fields[i] = FieldHistory{Field: f}
	}
	return b
}

// Reset opens a new window at now with the given starting values.
func (b *Buffer) Reset(now int64, values []float64) error {
	if len(values) != len(b.fields) {
		return ErrFieldCount
	}
	b.start = now
	for i := range b.fields {
		b.fields[i].Initial = values[i]
		b.fields[i].Samples = nil
		b.last[i] = quantize(values[i], b.fields[i].Precision)
	}
	return nil
}

// Update appends a sample for every field whose quantized value changed.
func (b *Buffer) Update(now int64, values []float64) error {
	if len(values) != len(b.fields) {
		return ErrFieldCount
	}
	for i := range b.fields {
		q := quantize(values[i], b.fields[i].Precision)
		if q == b.last[i] {
			continue
		}
		b.last[i] = q
		b.fields[i].Samples = append(b.fields[i].Samples, Sample{Time: now, Value: values[i]})
	}
	return nil
}

func (b *Buffer) Start() int64 {
	return b.start
}

func (b *Buffer) Fields() []FieldHistory {
	return b.fields
}

// NumSamples counts samples across all fields.
func (b *Buffer) NumSamples() int {
	n := 0
	for _, f := range b.fields {
		n += len(f.Samples)
	}
	return n
}

// ValueAt returns the last recorded value of the named field at or before t.
func (b *Buffer) ValueAt(name string, t int64) (float64, bool) {
	for _, f := range b.fields {
		if f.Name != name {
			continue
		}
		v := f.Initial
		for _, s := range f.Samples {
			if s.Time > t {
				break
			}
			v = s.Value
		}
		return v, true
	}
	return 0, false
}

// Pack encodes the buffer with delta-coded varints. Sample values are stored
// quantized, so unpacked values carry the field's precision.
func (b *Buffer) Pack() []byte {
	out := make([]byte, 0, 16+8*b.NumSamples())
	out = append(out, packVersion)
	out = binary.AppendUvarint(out, uint64(len(b.fields)))
	out = binary.AppendVarint(out, b.start)
	for _, f := range b.fields {
		out = binary.AppendUvarint(out, uint64(len(f.Name)))
		out = append(out, f.Name...)
		out = binary.AppendUvarint(out, uint64(f.Precision))
		prevQ := quantize(f.Initial, f.Precision)
		out = binary.AppendVarint(out, prevQ)
		out = binary.AppendUvarint(out, uint64(len(f.Samples)))
		prevT := b.start
		for _, s := range f.Samples {
			q := quantize(s.Value, f.Precision)
			out = binary.AppendUvarint(out, uint64(s.Time-prevT))
			out = binary.AppendVarint(out, q-prevQ)
			prevT = s.Time
			prevQ = q
		}
	}
	return out
}

func Unpack(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrBadPacking
	}
	if data[0] != packVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadPacking, data[0])
	}
	r := bytes.NewReader(data[1:])
	numFields, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, wrapPacking(err)
	}
	start, err := binary.ReadVarint(r)
	if err != nil {
		return nil, wrapPacking(err)
	}
	if numFields > uint64(len(data)) {
		return nil, ErrBadPacking
	}
	b := &Buffer{
		start:  start,
		fields: make([]FieldHistory, 0, numFields),
		last:   make([]int64, numFields),
	}
	for i := uint64(0); i < numFields; i++ {
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, wrapPacking(err)
		}
		if nameLen > uint64(r.Len()) {
			return nil, ErrBadPacking
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, wrapPacking(err)
		}
		precision, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, wrapPacking(err)
		}
		q, err := binary.ReadVarint(r)
		if err != nil {
			return nil, wrapPacking(err)
		}
		numSamples, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, wrapPacking(err)
		}
		if numSamples > uint64(r.Len()) {
			return nil, ErrBadPacking
		}
		f := FieldHistory{
			Field:   Field{Name: string(name), Precision: uint(precision)},
			Initial: dequantize(q, uint(precision)),
			Samples: make([]Sample, 0, numSamples),
		}
		t := start
		for j := uint64(0); j < numSamples; j++ {
			dt, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, wrapPacking(err)
			}
			dq, err := binary.ReadVarint(r)
			if err != nil {
				return nil, wrapPacking(err)
			}
			t += int64(dt)
			q += dq
			f.Samples = append(f.Samples, Sample{Time: t, Value: dequantize(q, f.Precision)})
		}
		b.last[i] = q
		b.fields = append(b.fields, f)
	}
	return b, nil
}

func quantize(v float64, precision uint) int64 {
	return int64(math.Round(v * float64(uint64(1)<<precision)))
}

func dequantize(q int64, precision uint) float64 {
	return float64(q) / float64(uint64(1)<<precision)
}

func wrapPacking(err error) error {
	return fmt.Errorf("%w: %v", ErrBadPacking, err)
}
