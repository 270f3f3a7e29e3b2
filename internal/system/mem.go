package system

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// MemoryInfo values are in kB, as printed by meminfo.
type MemoryInfo struct {
	TotalKB     uint64
	AvailableKB uint64
}

func (m MemoryInfo) UsagePercent() float64 {
	if m.TotalKB == 0 {
		return 0
	}
	used := float64(m.TotalKB) - float64(m.AvailableKB)
	return used / float64(m.TotalKB) * 100
}

func (m MemoryInfo) AvailableBytes() float64 {
	return float64(m.AvailableKB) * 1024
}

func (p ProcFS) ReadMemoryInfo() (MemoryInfo, error) {
	f, err := p.open("meminfo")
	if err != nil {
		return MemoryInfo{}, err
	}
	defer f.Close()

	var out MemoryInfo
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		var dst *uint64
		switch {
		case strings.HasPrefix(line, "MemTotal"):
			dst = &out.TotalKB
		case strings.HasPrefix(line, "MemAvailable"):
			dst = &out.AvailableKB
		default:
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		v, convErr := strconv.ParseUint(parts[1], 10, 64)
		if convErr != nil {
			continue
		}
		*dst = v
	}
	if err := s.Err(); err != nil {
		return MemoryInfo{}, fmt.Errorf("scan %s: %w", p.path("meminfo"), err)
	}
	if out.TotalKB == 0 {
		return MemoryInfo{}, fmt.Errorf("%w: MemTotal missing in %s", ErrMalformedRecord, p.path("meminfo"))
	}
	return out, nil
}
