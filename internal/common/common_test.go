package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.SetTotalBytes(100)
	m.AddPacket(40)
	m.AddPacket(0)
	m.AddDecoded(320, 2)
	m.AddPacket(10)
	m.AddFailed()
	m.Stop()
	s := m.Snapshot()
	if s.Packets != 2 || s.Bytes != 50 || s.Decoded != 1 || s.Failed != 1 || s.CalibrationErrors != 2 || s.BitsConsumed != 320 {
		t.Fatalf("snapshot %+v", s)
	}
	if s.Completion() != 0.5 {
		t.Fatalf("completion %v", s.Completion())
	}
	if d := m.Snapshot().Duration; d != s.Duration {
		t.Fatalf("duration moved after Stop: %v != %v", d, s.Duration)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		12:          "12 B",
		2048:        "2.00 KiB",
		3 << 20:     "3.00 MiB",
		5 << 30 / 2: "2.50 GiB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	m.Start()
	m.AddPacket(10)
	stop := StartProgressPrinter(&buf, m, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
	if !strings.Contains(buf.String(), "Decoded: 1 packets") {
		t.Fatalf("output %q", buf.String())
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	const want = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if d.SHA256 != want || d.Size != 4 || DigestBytes([]byte("test")) != want {
		t.Fatalf("digest %+v", d)
	}
}

func TestSetupLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	closer, err := SetupLogging(LogConfig{Directory: dir, MaxSizeMB: 1, Level: "debug"})
	if err != nil {
		t.Fatalf("SetupLogging: %v", err)
	}
	defer func() {
		closer.Close()
		Logger().SetOutput(os.Stderr)
		SetVerbose(false)
	}()
	Logger().Debug("rotated hello")
	data, err := os.ReadFile(filepath.Join(dir, "tlmdecom.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "rotated hello") {
		t.Fatalf("log file %q", data)
	}
	if _, err := SetupLogging(LogConfig{Directory: dir, Level: "loud"}); err == nil {
		t.Fatal("bad level accepted")
	}
}
