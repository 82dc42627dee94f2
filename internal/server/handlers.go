package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/stream"
)

// Server decodes packets posted over HTTP against the loaded schemas.
type Server struct {
	schemas       map[string]*schemaEntry
	schemaIDs     []string
	defaultSchema string
	framing       stream.Framing
	maxBody       int64
	concurrency   int
	metrics       *common.Metrics
	log           logrus.FieldLogger
}

// NewServer loads the configured schemas.
func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = common.Logger()
	}
	schemas, ids, def, err := buildSchemaMap(opts)
	if err != nil {
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	framing := opts.Framing
	if framing == "" {
		framing = stream.FramingCCSDS
	}
	m := common.NewMetrics()
	m.Start()
	return &Server{
		schemas:       schemas,
		schemaIDs:     ids,
		defaultSchema: def,
		framing:       framing,
		maxBody:       maxBody,
		concurrency:   concurrency,
		metrics:       m,
		log:           opts.Logger,
	}, nil
}

// Metrics returns the counters shared by every request.
func (s *Server) Metrics() *common.Metrics { return s.metrics }

type errorResponse struct {
	Error     string `json:"error"`
	Container string `json:"container,omitempty"`
	Field     string `json:"field,omitempty"`
	BitOffset *int   `json:"bitOffset,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var de *decom.DecodeError
	if errors.As(err, &de) {
		resp.Container, resp.Field = de.Container, de.Field
		off := de.BitOffset
		resp.BitOffset = &off
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// target picks the schema and container named by the query, falling back
// to the configured defaults.
func (s *Server) target(r *http.Request) (*schemaEntry, string, int, error) {
	id := strings.TrimSpace(r.URL.Query().Get("schema"))
	if id == "" {
		id = s.defaultSchema
	}
	entry, ok := s.schemas[id]
	if !ok {
		return nil, "", http.StatusNotFound, fmt.Errorf("unknown schema %q", id)
	}
	container := strings.TrimSpace(r.URL.Query().Get("container"))
	if container == "" {
		container = entry.defaultContainer
	}
	if container == "" {
		return nil, "", http.StatusBadRequest, errors.New("container required")
	}
	if _, ok := entry.decoder.Database().Container(container); !ok {
		return nil, "", http.StatusNotFound, fmt.Errorf("%w: %s", decom.ErrUnknownContainer, container)
	}
	return entry, container, 0, nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, http.StatusBadRequest, errors.New("empty body")
	}
	return body, 0, nil
}

type decodeResponse struct {
	Schema string        `json:"schema"`
	Result *decom.Result `json:"result"`
	Errors []string      `json:"errors,omitempty"`
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry, container, status, err := s.target(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	body, status, err := s.readBody(w, r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	s.metrics.AddPacket(int64(len(body)))
	res, err := entry.decoder.Decode(body, container)
	if res == nil {
		s.metrics.AddFailed()
		s.log.WithFields(logrus.Fields{"schema": entry.id, "container": container}).WithError(err).Info("decode failed")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	errs := errorStrings(err)
	s.metrics.AddDecoded(int64(res.BitsConsumed), len(errs))
	writeJSON(w, http.StatusOK, decodeResponse{Schema: entry.id, Result: res, Errors: errs})
}

type streamRecord struct {
	Index  int           `json:"index"`
	Offset int64         `json:"offset"`
	Size   int           `json:"size"`
	Result *decom.Result `json:"result,omitempty"`
	Errors []string      `json:"errors,omitempty"`
}

type streamTrailer struct {
	Done    bool   `json:"done"`
	Packets int    `json:"packets"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleDecodeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry, container, status, err := s.target(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	q := r.URL.Query()
	framing := s.framing
	if f := q.Get("framing"); f != "" {
		if framing, err = stream.ParseFraming(f); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	recordSize, err := intParam(q.Get("recordSize"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("recordSize: %w", err))
		return
	}
	skip, err := intParam(q.Get("skip"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("skip: %w", err))
		return
	}

	var src stream.Source
	var whole []byte
	if framing == stream.FramingNone {
		if whole, status, err = s.readBody(w, r); err != nil {
			writeError(w, status, err)
			return
		}
	} else {
		src, err = stream.NewSource(http.MaxBytesReader(w, r.Body, s.maxBody), framing, recordSize, skip)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if ms, ok := src.(interface{ SetMetrics(*common.Metrics) }); ok {
			ms.SetMetrics(s.metrics)
		}
	}

	// records go out while the body is still being read
	_ = http.NewResponseController(w).EnableFullDuplex()
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	nd := NewNDJSONWriter(w)
	trailer := streamTrailer{Done: true}
	emit := func(o stream.Outcome) error {
		trailer.Packets++
		rec := streamRecord{Index: o.Packet.Index, Offset: o.Packet.Offset, Size: len(o.Packet.Data), Result: o.Result, Errors: errorStrings(o.Err)}
		if o.Result == nil {
			trailer.Failed++
			s.metrics.AddFailed()
		} else {
			s.metrics.AddDecoded(int64(o.Result.BitsConsumed), len(rec.Errors))
		}
		return nd.WriteObject(rec)
	}
	if framing == stream.FramingNone {
		err = stream.DecodeConcatenated(r.Context(), whole, entry.decoder, container, s.metrics, emit)
	} else {
		err = stream.DecodeAll(r.Context(), src, entry.decoder, container, s.concurrency, emit)
	}
	if err != nil {
		trailer.Error = err.Error()
		s.log.WithFields(logrus.Fields{"schema": entry.id, "container": container, "framing": framing}).WithError(err).Warn("stream decode stopped")
	}
	if werr := nd.WriteObject(trailer); werr != nil {
		s.log.WithError(werr).Debug("write stream trailer")
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}

type containerInfo struct {
	Name        string   `json:"name"`
	Base        string   `json:"base,omitempty"`
	Restriction string   `json:"restriction,omitempty"`
	Abstract    bool     `json:"abstract,omitempty"`
	Entries     int      `json:"entries"`
	Inheritors  []string `json:"inheritors,omitempty"`
}

type schemaInfo struct {
	ID               string          `json:"id"`
	Digest           string          `json:"sha256"`
	DefaultContainer string          `json:"defaultContainer,omitempty"`
	Containers       []containerInfo `json:"containers"`
}

func describeContainers(db *mdb.Database) []containerInfo {
	out := make([]containerInfo, 0, len(db.Containers()))
	for _, c := range db.Containers() {
		ci := containerInfo{
			Name:     c.Qualified(),
			Abstract: c.Abstract,
			Entries:  len(c.Entries),
		}
		if c.Base != nil {
			ci.Base = c.Base.Qualified()
		}
		if c.Restriction != nil {
			ci.Restriction = mdb.DescribeCriteria(c.Restriction)
		}
		for _, sub := range db.Inheritors(c) {
			ci.Inheritors = append(ci.Inheritors, sub.Qualified())
		}
		out = append(out, ci)
	}
	return out
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ids := s.schemaIDs
	if id := r.URL.Query().Get("schema"); id != "" {
		if _, ok := s.schemas[id]; !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown schema %q", id))
			return
		}
		ids = []string{id}
	}
	out := make([]schemaInfo, 0, len(ids))
	for _, id := range ids {
		e := s.schemas[id]
		out = append(out, schemaInfo{
			ID:               e.id,
			Digest:           e.digest,
			DefaultContainer: e.defaultContainer,
			Containers:       describeContainers(e.decoder.Database()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}
