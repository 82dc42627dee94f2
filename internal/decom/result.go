package decom

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/elliotchance/orderedmap/v3"

	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/value"
)

type Validity uint8

const (
	Valid Validity = iota
	// Invalid marks a value outside the valid range of its type.
	Invalid
)

func (v Validity) String() string {
	if v == Invalid {
		return "invalid"
	}
	return "valid"
}

func (v Validity) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// ParameterValue is one decoded parameter instance.
type ParameterValue struct {
	Name      string         `json:"name"`
	Parameter *mdb.Parameter `json:"-"`
	Raw       value.Value    `json:"raw"`
	Eng       value.Value    `json:"eng"`
	// Acquired is false when the value could not be calibrated.
	Acquired  bool     `json:"acquired"`
	Validity  Validity `json:"validity"`
	Instance  int      `json:"instance"`
	BitOffset int      `json:"bitOffset"`
	BitSize   int      `json:"bitSize"`
}

// Result holds the values of one decode in decoding order. The first
// instance of a parameter is keyed by its qualified name, later ones by
// name[i].
type Result struct {
	Container    string
	Values       *orderedmap.OrderedMap[string, *ParameterValue]
	Skipped      []string
	BitsConsumed int

	byParam map[*mdb.Parameter][]*ParameterValue
}

func newResult() *Result {
	return &Result{
		Values:  orderedmap.NewOrderedMap[string, *ParameterValue](),
		byParam: map[*mdb.Parameter][]*ParameterValue{},
	}
}

func (r *Result) add(pv *ParameterValue) {
	list := r.byParam[pv.Parameter]
	pv.Instance = len(list)
	key := pv.Parameter.Qualified()
	if pv.Instance > 0 {
		key = fmt.Sprintf("%s[%d]", key, pv.Instance)
	}
	pv.Name = key
	r.Values.Set(key, pv)
	r.byParam[pv.Parameter] = append(list, pv)
}

func (r *Result) skip(p *mdb.Parameter) {
	r.Skipped = append(r.Skipped, p.Qualified())
}

// Get returns the value stored under key.
func (r *Result) Get(key string) (*ParameterValue, bool) {
	return r.Values.Get(key)
}

// Instances returns every decoded instance of p in order.
func (r *Result) Instances(p *mdb.Parameter) []*ParameterValue {
	return r.byParam[p]
}

// Len returns the number of decoded values.
func (r *Result) Len() int { return r.Values.Len() }

// Keys returns the result keys in decoding order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, r.Values.Len())
	for k := range r.Values.Keys() {
		keys = append(keys, k)
	}
	return keys
}

// Resolve implements Resolver over the acquired values of the result.
// Instance 0 is the latest instance, negative values go back from it and
// positive values count from the first instance.
func (r *Result) Resolve(ref mdb.ParameterRef) (value.Value, bool) {
	list := r.byParam[ref.Parameter]
	if len(list) == 0 {
		return value.Value{}, false
	}
	idx := len(list) - 1 + ref.Instance
	if ref.Instance > 0 {
		idx = ref.Instance - 1
	}
	if idx < 0 || idx >= len(list) {
		return value.Value{}, false
	}
	pv := list[idx]
	if !pv.Acquired {
		return value.Value{}, false
	}
	v := pv.Eng
	if ref.UseRawValue {
		v = pv.Raw
	}
	for _, m := range ref.MemberPath {
		var ok bool
		if v, ok = v.Member(m); !ok {
			return value.Value{}, false
		}
	}
	return v, v.IsValid()
}

type resultJSON struct {
	Container    string          `json:"container"`
	BitsConsumed int             `json:"bitsConsumed"`
	Values       json.RawMessage `json:"values"`
	Skipped      []string        `json:"skipped,omitempty"`
}

// MarshalJSON keeps the values in decoding order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for k, pv := range r.Values.AllFromFront() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(pv)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return json.Marshal(resultJSON{
		Container:    r.Container,
		BitsConsumed: r.BitsConsumed,
		Values:       buf.Bytes(),
		Skipped:      r.Skipped,
	})
}
