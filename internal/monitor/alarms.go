package monitor

import (
	"fmt"

	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
)

type alarmCheck struct {
	rule          string
	level         mdb.AlarmLevel
	minViolations int
	message       string
}

// checkAlarm applies the alarm of the value's type. The first context alarm
// whose context holds replaces the default alarm. ok is false when the type
// carries no applicable alarm.
func checkAlarm(pv *decom.ParameterValue, r decom.Resolver) (alarmCheck, bool) {
	switch t := pv.Parameter.Type.(type) {
	case *mdb.IntegerParameterType:
		return numericCheck(selectNumeric(t.Alarm, t.ContextAlarms, r), pv)
	case *mdb.FloatParameterType:
		return numericCheck(selectNumeric(t.Alarm, t.ContextAlarms, r), pv)
	case *mdb.EnumeratedParameterType:
		a := t.Alarm
		for i := range t.ContextAlarms {
			if decom.Evaluate(t.ContextAlarms[i].Context, r) {
				a = &t.ContextAlarms[i].EnumerationAlarm
				break
			}
		}
		if a == nil {
			return alarmCheck{}, false
		}
		label := pv.Eng.StringValue()
		l := a.Level(label)
		return alarmCheck{
			rule:          RuleEnumerationAlarm,
			level:         l,
			minViolations: a.MinViolations,
			message:       fmt.Sprintf("state %s raises %s", label, l),
		}, true
	}
	return alarmCheck{}, false
}

func selectNumeric(def *mdb.NumericAlarm, ctx []mdb.NumericContextAlarm, r decom.Resolver) *mdb.NumericAlarm {
	for i := range ctx {
		if decom.Evaluate(ctx[i].Context, r) {
			return &ctx[i].NumericAlarm
		}
	}
	return def
}

func numericCheck(a *mdb.NumericAlarm, pv *decom.ParameterValue) (alarmCheck, bool) {
	if a == nil {
		return alarmCheck{}, false
	}
	f, ok := pv.Eng.AsFloat()
	if !ok {
		return alarmCheck{}, false
	}
	l := a.Ranges.Level(f)
	chk := alarmCheck{rule: RuleNumericAlarm, level: l, minViolations: a.MinViolations}
	if r := limitFor(&a.Ranges, l); r != nil {
		chk.message = fmt.Sprintf("%g outside %s limit %s", f, l, r)
	}
	return chk, true
}

func limitFor(a *mdb.AlarmRanges, l mdb.AlarmLevel) *mdb.FloatRange {
	switch l {
	case mdb.LevelWatch:
		return a.Watch
	case mdb.LevelWarning:
		return a.Warning
	case mdb.LevelDistress:
		return a.Distress
	case mdb.LevelCritical:
		return a.Critical
	case mdb.LevelSevere:
		return a.Severe
	}
	return nil
}
