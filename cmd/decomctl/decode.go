package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/stream"
)

// record is one NDJSON line of decode output.
type record struct {
	Index  int           `json:"index"`
	Offset int64         `json:"offset"`
	Size   int           `json:"size"`
	APID   *uint16       `json:"apid,omitempty"`
	Result *decom.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	var (
		flags       inputFlags
		out         string
		stopOnError bool
	)
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode every packet of a recording to NDJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.open()
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			enc := json.NewEncoder(bw)
			err = s.run(cmd.Context(), func(o stream.Outcome) error {
				rec := record{Index: o.Packet.Index, Offset: o.Packet.Offset, Size: len(o.Packet.Data), Result: o.Result}
				if s.framing == stream.FramingCCSDS {
					if apid, ok := stream.APID(o.Packet.Data); ok {
						rec.APID = &apid
					}
				}
				if o.Err != nil {
					rec.Error = o.Err.Error()
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
				if stopOnError && o.Result == nil {
					return fmt.Errorf("packet %d: %w", o.Packet.Index, o.Err)
				}
				return nil
			})
			if ferr := bw.Flush(); err == nil {
				err = ferr
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "NDJSON output file (default stdout)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop at the first packet that fails to decode")
	return cmd
}
