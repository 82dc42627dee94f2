package mdb

import (
	"fmt"
	"math"
	"strings"
)

type AlarmLevel uint8

const (
	LevelNormal AlarmLevel = iota
	LevelWatch
	LevelWarning
	LevelDistress
	LevelCritical
	LevelSevere
)

var alarmLevelNames = [...]string{"normal", "watch", "warning", "distress", "critical", "severe"}

func (l AlarmLevel) String() string {
	if int(l) < len(alarmLevelNames) {
		return alarmLevelNames[l]
	}
	return fmt.Sprintf("level(%d)", l)
}

func ParseAlarmLevel(s string) (AlarmLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range alarmLevelNames {
		if n == s {
			return AlarmLevel(i), nil
		}
	}
	return LevelNormal, fmt.Errorf("unknown alarm level %q", s)
}

// FloatRange is an interval with optionally open ends. NaN bounds are
// unbounded.
type FloatRange struct {
	Min          float64
	Max          float64
	ExclusiveMin bool
	ExclusiveMax bool
}

// InclusiveRange returns [min, max].
func InclusiveRange(min, max float64) *FloatRange {
	return &FloatRange{Min: min, Max: max}
}

func (r *FloatRange) Contains(v float64) bool {
	if !math.IsNaN(r.Min) {
		if r.ExclusiveMin && v <= r.Min || !r.ExclusiveMin && v < r.Min {
			return false
		}
	}
	if !math.IsNaN(r.Max) {
		if r.ExclusiveMax && v >= r.Max || !r.ExclusiveMax && v > r.Max {
			return false
		}
	}
	return true
}

func (r *FloatRange) String() string {
	lo, hi := "[", "]"
	if r.ExclusiveMin {
		lo = "("
	}
	if r.ExclusiveMax {
		hi = ")"
	}
	return fmt.Sprintf("%s%g, %g%s", lo, r.Min, r.Max, hi)
}

// ValidRange bounds the values a parameter may legally take.
type ValidRange struct {
	FloatRange
	AppliesToCalibrated bool
}

// AlarmRanges gives, per level, the range of values that do NOT raise it.
type AlarmRanges struct {
	Watch    *FloatRange
	Warning  *FloatRange
	Distress *FloatRange
	Critical *FloatRange
	Severe   *FloatRange
}

// Level returns the most severe level whose range excludes v.
func (a *AlarmRanges) Level(v float64) AlarmLevel {
	checks := []struct {
		r *FloatRange
		l AlarmLevel
	}{
		{a.Severe, LevelSevere},
		{a.Critical, LevelCritical},
		{a.Distress, LevelDistress},
		{a.Warning, LevelWarning},
		{a.Watch, LevelWatch},
	}
	for _, c := range checks {
		if c.r != nil && !c.r.Contains(v) {
			return c.l
		}
	}
	return LevelNormal
}

// NumericAlarm checks a numeric parameter. MinViolations is the number of
// consecutive out-of-limit samples needed before the alarm is raised.
type NumericAlarm struct {
	Ranges        AlarmRanges
	MinViolations int
}

type NumericContextAlarm struct {
	Context MatchCriteria
	NumericAlarm
}

type EnumerationAlarmItem struct {
	Label string
	Level AlarmLevel
}

type EnumerationAlarm struct {
	DefaultLevel  AlarmLevel
	Items         []EnumerationAlarmItem
	MinViolations int
}

// Level returns the level configured for label.
func (a *EnumerationAlarm) Level(label string) AlarmLevel {
	for _, it := range a.Items {
		if it.Label == label {
			return it.Level
		}
	}
	return a.DefaultLevel
}

type EnumerationContextAlarm struct {
	Context MatchCriteria
	EnumerationAlarm
}
