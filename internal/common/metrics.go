package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"
)

// Metrics counts the packets a decode run has read and how they fared.
// Safe for concurrent use.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	bytes      int64
	totalBytes int64
	packets    int64
	decoded    int64
	failed     int64
	calErrors  int64
	bits       int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddPacket records a packet of size bytes read from the input.
func (m *Metrics) AddPacket(size int64) {
	if size <= 0 {
		return
	}
	m.mu.Lock()
	m.bytes += size
	m.packets++
	m.mu.Unlock()
}

// AddDecoded records a successful decode that consumed bits bits and
// produced calErrs calibration failures in lenient mode.
func (m *Metrics) AddDecoded(bits int64, calErrs int) {
	m.mu.Lock()
	m.decoded++
	m.bits += bits
	m.calErrors += int64(calErrs)
	m.mu.Unlock()
}

func (m *Metrics) AddFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:          m.elapsedLocked(),
		Bytes:             m.bytes,
		TotalBytes:        m.totalBytes,
		Packets:           m.packets,
		Decoded:           m.decoded,
		Failed:            m.failed,
		CalibrationErrors: m.calErrors,
		BitsConsumed:      m.bits,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration          time.Duration `json:"durationNs"`
	Bytes             int64         `json:"bytes"`
	TotalBytes        int64         `json:"totalBytes,omitempty"`
	Packets           int64         `json:"packets"`
	Decoded           int64         `json:"decoded"`
	Failed            int64         `json:"failed"`
	CalibrationErrors int64         `json:"calibrationErrors"`
	BitsConsumed      int64         `json:"bitsConsumed"`
}

func (s MetricsSnapshot) PacketsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Packets) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	rate := s.PacketsPerSecond()
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d packets, %d failed, %.0f pkt/s",
			pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Packets, s.Failed, rate)
	}
	return fmt.Sprintf("Decoded: %d packets, %d failed (%s) %.0f pkt/s", s.Packets, s.Failed, FormatBytes(s.Bytes), rate)
}

// StartProgressPrinter redraws a progress line on w every interval until
// the returned stop function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				if pad := lastLen - len(line); pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
