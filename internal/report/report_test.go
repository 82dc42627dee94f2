package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/monitor"
)

const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func sampleReport() DecodeReport {
	tally := Tally{}
	for _, c := range []string{"/S/Hk", "/S/Sci", "/S/Hk"} {
		tally.Add(c)
	}
	return DecodeReport{
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Tool:        "decomctl",
		Schema:      common.FileDigest{Path: "schema.yaml", SHA256: digest, Size: 120},
		Input:       common.FileDigest{Path: "pass.bin", Size: 4096},
		Container:   "/S/Primary",
		Framing:     "ccsds",
		Metrics:     common.MetricsSnapshot{Packets: 4, Decoded: 3, Failed: 1},
		Containers:  tally.Counts(),
		Summary:     monitor.Summary{Packets: 4, Decoded: 3, Total: 1, Errors: 1},
		Worst:       "critical",
		Diagnostics: []monitor.Diagnostic{{
			PacketIndex: 2, Offset: "0x40", Container: "/S/Hk", Parameter: "/S/temp",
			RuleId: monitor.RuleNumericAlarm, Severity: monitor.ERROR, Level: "critical",
			Message: "above critical limit", Value: "120",
		}},
	}
}

func TestTallyCounts(t *testing.T) {
	got := sampleReport().Containers
	if len(got) != 2 || got[0] != (ContainerCount{"/S/Hk", 2}) || got[1] != (ContainerCount{"/S/Sci", 1}) {
		t.Fatalf("got %+v", got)
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	rep := sampleReport()
	if err := SaveJSON(rep, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	back, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if back.Schema.SHA256 != digest || back.Worst != "critical" || len(back.Diagnostics) != 1 || back.Metrics.Failed != 1 {
		t.Fatalf("loaded %+v", back)
	}
}

func TestSavePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := SavePDF(sampleReport(), path); err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("not a PDF: %q", data[:8])
	}
}

func TestSchemaDigestToQR(t *testing.T) {
	png, err := SchemaDigestToQR(" "+digest+"\n", 0)
	if err != nil {
		t.Fatalf("SchemaDigestToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("not a PNG")
	}
	if _, err := SchemaDigestToQR("zz", 64); err == nil {
		t.Fatal("empty digest accepted")
	}
}
