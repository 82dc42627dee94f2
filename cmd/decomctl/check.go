package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/monitor"
	"example.com/tlmdecom/internal/report"
	"example.com/tlmdecom/internal/stream"
)

// monitorFlags are shared by check and report.
type monitorFlags struct {
	failOn            string
	includeTimestamps bool
}

func (m *monitorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.failOn, "fail-on", "distress", "alarm level that fails the run: watch, warning, distress, critical or severe")
	cmd.Flags().BoolVar(&m.includeTimestamps, "diag-include-timestamps", true, "include timestamp metadata in diagnostics output")
}

// monitorRun decodes the recording and checks every decoded packet.
func (s *session) monitorRun(ctx context.Context, m *monitorFlags) (*monitor.Engine, report.Tally, error) {
	eng := monitor.NewEngine(filepath.Base(s.flags.in))
	eng.SetConfigValue("diag.include_timestamps", m.includeTimestamps)
	tally := report.Tally{}
	err := s.run(ctx, func(o stream.Outcome) error {
		if o.Result == nil {
			eng.RecordError(o.Packet.Index, o.Packet.Offset, o.Err)
			return nil
		}
		tally.Add(o.Result.Container)
		eng.Check(o.Packet.Index, o.Packet.Offset, o.Result)
		return nil
	})
	return eng, tally, err
}

// verdict fails the run when an alarm reached the fail-on level or a packet
// could not be decoded.
func verdict(eng *monitor.Engine, failOn string) error {
	level, err := mdb.ParseAlarmLevel(failOn)
	if err != nil {
		return err
	}
	worst := eng.Worst()
	if level != mdb.LevelNormal && worst >= level {
		return fmt.Errorf("%w: worst alarm %s", errThreshold, worst)
	}
	if n := eng.MakeSummary().ByRule[monitor.RuleDecodeError]; n > 0 {
		return fmt.Errorf("%w: %d packets failed to decode", errThreshold, n)
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	var (
		flags inputFlags
		mon   monitorFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decode a recording and check values against their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := mdb.ParseAlarmLevel(mon.failOn); err != nil {
				return err
			}
			s, err := flags.open()
			if err != nil {
				return err
			}
			eng, _, err := s.monitorRun(cmd.Context(), &mon)
			if err != nil {
				return err
			}
			if err := eng.WriteDiagnosticsNDJSON(out); err != nil {
				return err
			}
			summary := eng.MakeSummary()
			b, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return verdict(eng, mon.failOn)
		},
	}
	flags.register(cmd)
	mon.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "diagnostics.jsonl", "diagnostics output")
	return cmd
}
