package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/stream"
)

// SchemaPack names a mission database file served by the daemon.
type SchemaPack struct {
	ID               string `json:"id" yaml:"id"`
	Path             string `json:"path" yaml:"path"`
	DefaultContainer string `json:"defaultContainer,omitempty" yaml:"defaultContainer,omitempty"`
}

// Options configures server creation.
type Options struct {
	Schemas []SchemaPack
	// DefaultSchema is used when a request names none. Empty selects the
	// first pack.
	DefaultSchema string
	Framing       stream.Framing
	MaxBodyBytes  int64
	Concurrency   int
	Lenient       bool
	Logger        logrus.FieldLogger
}

const defaultMaxBodyBytes = 64 << 20

type schemaEntry struct {
	id               string
	path             string
	digest           string
	defaultContainer string
	decoder          *decom.Decoder
}

func (o Options) decodeOptions() decom.Options {
	opts := decom.DefaultOptions()
	opts.ContinueOnCalibrationError = o.Lenient
	opts.Logger = o.Logger
	return opts
}

// buildSchemaMap loads every configured schema and returns them with their
// sorted ids and the default id. Relative paths are taken
// as they are; the daemon resolves them against its config file.
func buildSchemaMap(opts Options) (map[string]*schemaEntry, []string, string, error) {
	if len(opts.Schemas) == 0 {
		return nil, nil, "", errors.New("no schemas configured")
	}
	entries := make(map[string]*schemaEntry)
	ids := make([]string, 0, len(opts.Schemas))
	for _, pack := range opts.Schemas {
		id := strings.TrimSpace(pack.ID)
		path := strings.TrimSpace(pack.Path)
		if path == "" {
			return nil, nil, "", fmt.Errorf("schema %q missing path", id)
		}
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if _, exists := entries[id]; exists {
			return nil, nil, "", fmt.Errorf("duplicate schema %s configured", id)
		}
		db, err := mdb.Load(path)
		if err != nil {
			return nil, nil, "", fmt.Errorf("schema %s: %w", id, err)
		}
		digest, err := common.DigestFile(path)
		if err != nil {
			return nil, nil, "", fmt.Errorf("schema %s digest: %w", id, err)
		}
		dc := strings.TrimSpace(pack.DefaultContainer)
		if dc != "" {
			if _, ok := db.Container(dc); !ok {
				return nil, nil, "", fmt.Errorf("schema %s: default container %s: %w", id, dc, decom.ErrUnknownContainer)
			}
		}
		entries[id] = &schemaEntry{
			id:               id,
			path:             path,
			digest:           digest.SHA256,
			defaultContainer: dc,
			decoder:          decom.NewDecoder(db, opts.decodeOptions()),
		}
		ids = append(ids, id)
	}
	def := ids[0]
	if opts.DefaultSchema != "" {
		if _, ok := entries[opts.DefaultSchema]; !ok {
			return nil, nil, "", fmt.Errorf("default schema %s not configured", opts.DefaultSchema)
		}
		def = opts.DefaultSchema
	}
	sort.Strings(ids)
	return entries, ids, def, nil
}
