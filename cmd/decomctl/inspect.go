package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
)

func newInspectCmd() *cobra.Command {
	var schema, container string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the containers and parameters of a mission database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := mdb.Load(schema)
			if err != nil {
				return err
			}
			digest, err := common.DigestFile(schema)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "schema %s sha256:%s\n", db.Root().Qualified(), digest.SHA256)
			if container == "" {
				printTree(w, db)
				return printParameters(w, db)
			}
			c, ok := db.Container(container)
			if !ok {
				return fmt.Errorf("%w: %s", decom.ErrUnknownContainer, container)
			}
			return printEntries(w, c)
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "mission database YAML file")
	cmd.Flags().StringVarP(&container, "container", "c", "", "list the entries of one container")
	cmd.MarkFlagRequired("schema")
	return cmd
}

func printTree(w io.Writer, db *mdb.Database) {
	fmt.Fprintln(w, "\ncontainers:")
	var walk func(c *mdb.SequenceContainer, depth int)
	walk = func(c *mdb.SequenceContainer, depth int) {
		line := strings.Repeat("  ", depth+1) + c.Qualified()
		if c.Restriction != nil {
			line += " [" + mdb.DescribeCriteria(c.Restriction) + "]"
		}
		if c.Abstract {
			line += " abstract"
		}
		fmt.Fprintf(w, "%s (%d entries)\n", line, len(c.Entries))
		for _, sub := range db.Inheritors(c) {
			walk(sub, depth+1)
		}
	}
	for _, c := range db.RootContainers() {
		walk(c, 0)
	}
}

func printParameters(w io.Writer, db *mdb.Database) error {
	fmt.Fprintln(w, "\nparameters:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tTYPE\tENG\tRAW\tUNITS")
	for _, p := range db.Parameters() {
		units := strings.Join(p.Type.Base().Units, " ")
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", p.Qualified(), p.Type.TypeName(), mdb.EngKind(p.Type), mdb.RawKind(p.Type), units)
	}
	return tw.Flush()
}

func printEntries(w io.Writer, c *mdb.SequenceContainer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTAINER\tENTRY\tKIND\tDETAIL\tPLACEMENT")
	for _, anc := range c.Ancestors() {
		for _, se := range anc.Entries {
			name, kind, detail := describeEntry(se)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", anc.Qualified(), name, kind, detail, placement(se.Entry()))
		}
	}
	return tw.Flush()
}

func describeEntry(se mdb.SequenceEntry) (name, kind, detail string) {
	switch e := se.(type) {
	case *mdb.ParameterEntry:
		return e.Parameter.Qualified(), "parameter", e.Parameter.Type.TypeName()
	case *mdb.ArrayParameterEntry:
		dims := make([]string, len(e.Dims))
		for i, d := range e.Dims {
			dims[i] = integerValue(d)
		}
		detail = e.Parameter.Type.TypeName()
		if len(dims) > 0 {
			detail += "[" + strings.Join(dims, "][") + "]"
		}
		return e.Parameter.Qualified(), "array", detail
	case *mdb.ContainerEntry:
		return e.Container.Qualified(), "container", fmt.Sprintf("%d entries", len(e.Container.Entries))
	case *mdb.FixedValueEntry:
		return e.Name, "fixed", fmt.Sprintf("0x%s/%d bits", hex.EncodeToString(e.BinaryValue), e.SizeInBits)
	}
	return "?", fmt.Sprintf("%T", se), ""
}

func placement(e *mdb.EntryBase) string {
	var parts []string
	if e.Location == mdb.ContainerStart || e.LocationInBits != 0 {
		parts = append(parts, fmt.Sprintf("@%s%+d", e.Location, e.LocationInBits))
	}
	if e.Repeat != nil {
		rep := "x" + integerValue(e.Repeat.Count)
		if e.Repeat.OffsetInBits != 0 {
			rep += fmt.Sprintf(" gap %d", e.Repeat.OffsetInBits)
		}
		parts = append(parts, rep)
	}
	if e.IncludeCondition != nil {
		parts = append(parts, "if "+mdb.DescribeCriteria(e.IncludeCondition))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func integerValue(iv mdb.IntegerValue) string {
	switch v := iv.(type) {
	case *mdb.FixedIntegerValue:
		return strconv.FormatInt(v.Value, 10)
	case *mdb.DynamicValue:
		s := v.Ref.String()
		if a := v.Adjustment; a != nil {
			s = fmt.Sprintf("%s*%g%+g", s, a.Slope, a.Intercept)
		}
		return s
	}
	return "?"
}
