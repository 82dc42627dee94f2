// Package monitor checks decoded values against the limits declared in the
// mission database and reports diagnostics.
package monitor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Rule ids carried by diagnostics.
const (
	RuleNumericAlarm     = "ALARM-NUMERIC"
	RuleEnumerationAlarm = "ALARM-ENUM"
	RuleValidRange       = "VALID-RANGE"
	RuleNotAcquired      = "NOT-ACQUIRED"
	RuleDecodeError      = "DECODE-ERROR"
)

// SeverityOf maps an alarm level onto a diagnostic severity.
func SeverityOf(l mdb.AlarmLevel) Severity {
	switch {
	case l >= mdb.LevelDistress:
		return ERROR
	case l >= mdb.LevelWatch:
		return WARN
	}
	return INFO
}

type Diagnostic struct {
	Ts          time.Time `json:"ts"`
	File        string    `json:"file,omitempty"`
	PacketIndex int       `json:"packetIndex"`
	Offset      string    `json:"offset,omitempty"`
	Container   string    `json:"container,omitempty"`
	Parameter   string    `json:"parameter,omitempty"`
	RuleId      string    `json:"ruleId"`
	Severity    Severity  `json:"severity"`
	Level       string    `json:"level,omitempty"`
	Message     string    `json:"message"`
	Value       string    `json:"value,omitempty"`
}

type Summary struct {
	Packets  int            `json:"packets"`
	Decoded  int            `json:"decoded"`
	Total    int            `json:"total"`
	Errors   int            `json:"errors"`
	Warnings int            `json:"warnings"`
	ByLevel  map[string]int `json:"byLevel,omitempty"`
	ByRule   map[string]int `json:"byRule,omitempty"`
	Pass     bool           `json:"pass"`
}

// Engine checks decode results packet after packet. Violation counters
// persist between packets so MinViolations spans consecutive samples. It is
// safe for concurrent use, but consecutive-sample semantics assume results
// arrive in stream order.
type Engine struct {
	mu          sync.Mutex
	file        string
	diagnostics []Diagnostic
	violations  map[string]int
	packets     int
	decoded     int

	includeTimestamps bool
	now               func() time.Time
}

func NewEngine(file string) *Engine {
	return &Engine{
		file:              file,
		violations:        map[string]int{},
		includeTimestamps: true,
		now:               time.Now,
	}
}

// SetConfigValue sets an engine option by name. Only
// "diag.include_timestamps" is recognised.
func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch key {
	case "diag.include_timestamps":
		switch v := value.(type) {
		case bool:
			e.includeTimestamps = v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				e.includeTimestamps = b
			}
		}
	}
}

func offsetString(byteOffset int64) string {
	if byteOffset < 0 {
		return ""
	}
	return fmt.Sprintf("0x%X", byteOffset)
}

// Check evaluates the values of one decoded packet and records the
// diagnostics it raises. byteOffset locates the packet in its source.
func (e *Engine) Check(packet int, byteOffset int64, res *decom.Result) []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.packets++
	if res == nil {
		return nil
	}
	e.decoded++
	var out []Diagnostic
	for _, pv := range res.Values.AllFromFront() {
		base := Diagnostic{
			Ts:          e.now(),
			File:        e.file,
			PacketIndex: packet,
			Offset:      offsetString(byteOffset),
			Container:   res.Container,
			Parameter:   pv.Name,
		}
		out = append(out, e.checkValue(base, pv, res)...)
	}
	e.diagnostics = append(e.diagnostics, out...)
	return out
}

func (e *Engine) checkValue(base Diagnostic, pv *decom.ParameterValue, res *decom.Result) []Diagnostic {
	var out []Diagnostic
	if !pv.Acquired {
		d := base
		d.RuleId, d.Severity = RuleNotAcquired, WARN
		d.Message = "value could not be calibrated"
		d.Value = pv.Raw.String()
		return append(out, d)
	}
	if pv.Validity == decom.Invalid {
		d := base
		d.RuleId, d.Severity = RuleValidRange, WARN
		d.Message = "value outside valid range " + pv.Parameter.Type.Base().ValidRange.String()
		d.Value = pv.Eng.String()
		out = append(out, d)
	}
	chk, ok := checkAlarm(pv, res)
	if !ok {
		return out
	}
	key := pv.Parameter.Qualified()
	if chk.level == mdb.LevelNormal {
		delete(e.violations, key)
		return out
	}
	e.violations[key]++
	if e.violations[key] < max(chk.minViolations, 1) {
		return out
	}
	d := base
	d.RuleId = chk.rule
	d.Severity = SeverityOf(chk.level)
	d.Level = chk.level.String()
	d.Message = chk.message
	d.Value = pv.Eng.String()
	return append(out, d)
}

// RecordError records a packet that could not be decoded.
func (e *Engine) RecordError(packet int, byteOffset int64, err error) Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.packets++
	d := Diagnostic{
		Ts:          e.now(),
		File:        e.file,
		PacketIndex: packet,
		Offset:      offsetString(byteOffset),
		RuleId:      RuleDecodeError,
		Severity:    ERROR,
		Message:     err.Error(),
	}
	var de *decom.DecodeError
	if errors.As(err, &de) {
		d.Container, d.Parameter = de.Container, de.Field
	}
	e.diagnostics = append(e.diagnostics, d)
	return d
}

// Diagnostics returns a copy of everything recorded so far.
func (e *Engine) Diagnostics() []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Diagnostic(nil), e.diagnostics...)
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.diagnostics {
		if !e.includeTimestamps {
			d.Ts = time.Time{}
		}
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return w.Flush()
}

// MakeSummary rolls the diagnostics up. A run passes when nothing reached
// ERROR.
func (e *Engine) MakeSummary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Summary{
		Packets: e.packets,
		Decoded: e.decoded,
		Total:   len(e.diagnostics),
		ByLevel: map[string]int{},
		ByRule:  map[string]int{},
	}
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			s.Errors++
		case WARN:
			s.Warnings++
		}
		if d.Level != "" {
			s.ByLevel[d.Level]++
		}
		s.ByRule[d.RuleId]++
	}
	s.Pass = s.Errors == 0
	return s
}

// Worst returns the highest alarm level recorded.
func (e *Engine) Worst() mdb.AlarmLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	worst := mdb.LevelNormal
	for _, d := range e.diagnostics {
		if l, err := mdb.ParseAlarmLevel(d.Level); err == nil && l > worst {
			worst = l
		}
	}
	return worst
}
