package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/report"
)

func newReportCmd() *cobra.Command {
	var (
		flags       inputFlags
		mon         monitorFlags
		jsonOut     string
		pdfOut      string
		diagnostics bool
		signKey     string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Decode a recording and write a JSON or PDF report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut == "" && pdfOut == "" {
				return errors.New("report needs --json or --pdf")
			}
			if _, err := mdb.ParseAlarmLevel(mon.failOn); err != nil {
				return err
			}
			s, err := flags.open()
			if err != nil {
				return err
			}
			eng, tally, err := s.monitorRun(cmd.Context(), &mon)
			if err != nil {
				return err
			}
			rep := report.DecodeReport{
				GeneratedAt: time.Now().UTC(),
				Tool:        "decomctl " + versionString(),
				Schema:      s.schema,
				Input:       s.input,
				Container:   flags.container,
				Framing:     string(s.framing),
				Metrics:     s.metrics.Snapshot(),
				Containers:  tally.Counts(),
				Summary:     eng.MakeSummary(),
				Worst:       eng.Worst().String(),
			}
			if root, ok := s.db.Container(flags.container); ok {
				rep.Container = root.Qualified()
			}
			if diagnostics {
				rep.Diagnostics = eng.Diagnostics()
			}
			if jsonOut != "" {
				if err := report.SaveJSON(rep, jsonOut); err != nil {
					return fmt.Errorf("write json report: %w", err)
				}
				if signKey != "" {
					key, err := os.ReadFile(signKey)
					if err != nil {
						return err
					}
					sigPath, err := report.SignFile(jsonOut, key, s.schema.SHA256)
					if err != nil {
						return fmt.Errorf("sign json report: %w", err)
					}
					s.log.WithField("signature", sigPath).Info("report signed")
				}
			}
			if pdfOut != "" {
				if err := report.SavePDF(rep, pdfOut); err != nil {
					return fmt.Errorf("write pdf report: %w", err)
				}
			}
			return verdict(eng, mon.failOn)
		},
	}
	flags.register(cmd)
	mon.register(cmd)
	cmd.Flags().StringVar(&jsonOut, "json", "", "JSON report output")
	cmd.Flags().StringVar(&pdfOut, "pdf", "", "PDF report output")
	cmd.Flags().BoolVar(&diagnostics, "diagnostics", true, "list every diagnostic in the report")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "RSA private key (PEM) for a detached JWS over the JSON report")
	return cmd
}
