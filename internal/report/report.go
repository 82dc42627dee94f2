// Package report renders the outcome of a decode run as JSON or PDF.
package report

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/monitor"
)

// ContainerCount is the number of packets that resolved to a container.
type ContainerCount struct {
	Container string `json:"container"`
	Packets   int    `json:"packets"`
}

type DecodeReport struct {
	GeneratedAt time.Time              `json:"generatedAt"`
	Tool        string                 `json:"tool"`
	Schema      common.FileDigest      `json:"schema"`
	Input       common.FileDigest      `json:"input"`
	Container   string                 `json:"container"`
	Framing     string                 `json:"framing,omitempty"`
	Metrics     common.MetricsSnapshot `json:"metrics"`
	Containers  []ContainerCount       `json:"containers"`
	Summary     monitor.Summary        `json:"summary"`
	Worst       string                 `json:"worst"`
	Diagnostics []monitor.Diagnostic   `json:"diagnostics,omitempty"`
}

// Tally counts decoded packets per resolved container.
type Tally map[string]int

func (t Tally) Add(container string) { t[container]++ }

// Counts returns the tally ordered by descending count, then by name.
func (t Tally) Counts() []ContainerCount {
	out := make([]ContainerCount, 0, len(t))
	for c, n := range t {
		out = append(out, ContainerCount{Container: c, Packets: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Packets != out[j].Packets {
			return out[i].Packets > out[j].Packets
		}
		return out[i].Container < out[j].Container
	})
	return out
}

func SaveJSON(rep DecodeReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (DecodeReport, error) {
	var rep DecodeReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
