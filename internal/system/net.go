package system

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const LoopbackInterface = "lo"

type NetCounters struct {
	RxBytes uint64
	TxBytes uint64
}

// ReadNetCounters sums received and transmitted bytes over every interface
// except loopback. Lines that do not parse are skipped.
func (p ProcFS) ReadNetCounters() (NetCounters, error) {
	f, err := p.open("net", "dev")
	if err != nil {
		return NetCounters{}, err
	}
	defer f.Close()

	var out NetCounters
	s := bufio.NewScanner(f)
	lineNo := 0
	for s.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue
		}
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		if iface == LoopbackInterface || iface == "" {
			continue
		}
		// rx_bytes, 7 more receive fields, then tx_bytes.
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		rx, rxErr := strconv.ParseUint(fields[0], 10, 64)
		tx, txErr := strconv.ParseUint(fields[8], 10, 64)
		if rxErr != nil || txErr != nil {
			continue
		}
		out.RxBytes += rx
		out.TxBytes += tx
	}
	if err := s.Err(); err != nil {
		return NetCounters{}, fmt.Errorf("scan %s: %w", p.path("net", "dev"), err)
	}
	return out, nil
}
