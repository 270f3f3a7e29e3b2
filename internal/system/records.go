package system

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Layout shared with the kernel module producing the counter devices.
const (
	RecordNameSize    = 16
	RecordCounterSize = 8
	CPUCounterFields  = 10
	SoftirqFields     = 10

	CPURecordSize     = RecordNameSize + CPUCounterFields*RecordCounterSize
	SoftirqRecordSize = RecordNameSize + SoftirqFields*RecordCounterSize

	// MaxCPUs bounds the number of records exposed by a counter device.
	MaxCPUs = 256
)

// CPURecord mirrors one row of the CPU statistics device, in USER_HZ ticks.
type CPURecord struct {
	Name      string
	User      uint64
	Nice      uint64
	System    uint64
	Idle      uint64
	IOWait    uint64
	IRQ       uint64
	SoftIRQ   uint64
	Steal     uint64
	Guest     uint64
	GuestNice uint64
}

// SoftirqRecord mirrors one row of the softirq statistics device.
type SoftirqRecord struct {
	Name    string
	HI      uint64
	Timer   uint64
	NetTX   uint64
	NetRX   uint64
	Block   uint64
	IRQPoll uint64
	Tasklet uint64
	Sched   uint64
	HRTimer uint64
	RCU     uint64
}

// IsSentinel reports whether rec terminates the record array.
func IsSentinel(rec []byte) bool {
	return len(rec) == 0 || rec[0] == 0
}

// IsAggregateName reports whether a row name summarises all units ("cpu")
// rather than describing one unit ("cpu0").
func IsAggregateName(name string) bool {
	return len(name) == 3
}

func (r CPURecord) IsAggregate() bool     { return IsAggregateName(r.Name) }
func (r SoftirqRecord) IsAggregate() bool { return IsAggregateName(r.Name) }

// Counters converts the record into the shape produced by the /proc/stat reader.
func (r CPURecord) Counters() CPUCounters {
	c := CPUCounters{
		User:    r.User,
		Nice:    r.Nice,
		System:  r.System,
		Idle:    r.Idle,
		IOWait:  r.IOWait,
		IRQ:     r.IRQ,
		SoftIRQ: r.SoftIRQ,
		Steal:   r.Steal,
	}
	c.Total = c.sum()
	return c
}

func DecodeCPURecord(rec []byte) (CPURecord, error) {
	name, vals, err := decodeRecord(rec, CPUCounterFields)
	if err != nil {
		return CPURecord{}, err
	}
	return CPURecord{
		Name:      name,
		User:      vals[0],
		Nice:      vals[1],
		System:    vals[2],
		Idle:      vals[3],
		IOWait:    vals[4],
		IRQ:       vals[5],
		SoftIRQ:   vals[6],
		Steal:     vals[7],
		Guest:     vals[8],
		GuestNice: vals[9],
	}, nil
}

func DecodeSoftirqRecord(rec []byte) (SoftirqRecord, error) {
	name, vals, err := decodeRecord(rec, SoftirqFields)
	if err != nil {
		return SoftirqRecord{}, err
	}
	return SoftirqRecord{
		Name:    name,
		HI:      vals[0],
		Timer:   vals[1],
		NetTX:   vals[2],
		NetRX:   vals[3],
		Block:   vals[4],
		IRQPoll: vals[5],
		Tasklet: vals[6],
		Sched:   vals[7],
		HRTimer: vals[8],
		RCU:     vals[9],
	}, nil
}

// EncodeCPURecord is the inverse of DecodeCPURecord. It is used to build
// fixtures and by tools that replay captured device content.
func EncodeCPURecord(r CPURecord) []byte {
	return encodeRecord(r.Name, []uint64{
		r.User, r.Nice, r.System, r.Idle, r.IOWait,
		r.IRQ, r.SoftIRQ, r.Steal, r.Guest, r.GuestNice,
	})
}

func EncodeSoftirqRecord(r SoftirqRecord) []byte {
	return encodeRecord(r.Name, []uint64{
		r.HI, r.Timer, r.NetTX, r.NetRX, r.Block,
		r.IRQPoll, r.Tasklet, r.Sched, r.HRTimer, r.RCU,
	})
}

func decodeRecord(rec []byte, fields int) (string, []uint64, error) {
	want := RecordNameSize + fields*RecordCounterSize
	if len(rec) < want {
		return "", nil, fmt.Errorf("%w: record has %d bytes, need %d", ErrMalformedRecord, len(rec), want)
	}
	name := recordName(rec[:RecordNameSize])
	if name == "" {
		return "", nil, fmt.Errorf("%w: empty record name", ErrMalformedRecord)
	}
	vals := make([]uint64, fields)
	for i := range vals {
		off := RecordNameSize + i*RecordCounterSize
		vals[i] = binary.NativeEndian.Uint64(rec[off : off+RecordCounterSize])
	}
	return name, vals, nil
}

func encodeRecord(name string, vals []uint64) []byte {
	out := make([]byte, RecordNameSize+len(vals)*RecordCounterSize)
	copy(out[:RecordNameSize-1], name)
	for i, v := range vals {
		off := RecordNameSize + i*RecordCounterSize
		binary.NativeEndian.PutUint64(out[off:off+RecordCounterSize], v)
	}
	return out
}

func recordName(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
