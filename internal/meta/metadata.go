// Package meta holds the free-form string attributes attached to transaction groups.
package meta

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
)

// Metadata is a small string map with validation and stable JSON encoding.
type Metadata map[string]string

const (
	MaxPairs     = 20
	MaxKeyLen    = 64
	MaxValLen    = 256
	MaxTotalJSON = 4096
)

// Reserved keys written by the scenario commit path.
const (
	KeyScenarioLabel = "scenario_label"
	ParamPrefix      = "param."
)

func New(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metadata) Clone() Metadata { return New(m) }

func (m Metadata) Get(k string) (string, bool) { v, ok := m[k]; return v, ok }

// Set stores k=v, refusing pairs that would break the limits.
func (m Metadata) Set(k, v string) error {
	if len(k) == 0 || len(k) > MaxKeyLen {
		return fmt.Errorf("%w: metadata key %q empty or too long", errs.ErrInvalid, k)
	}
	if len(v) > MaxValLen {
		return fmt.Errorf("%w: metadata value for %q too long", errs.ErrInvalid, k)
	}
	if _, exists := m[k]; !exists && len(m) >= MaxPairs {
		return fmt.Errorf("%w: metadata has more than %d pairs", errs.ErrInvalid, MaxPairs)
	}
	m[k] = v
	return nil
}

// Merge copies other into m in key order, stopping at the first rejected pair.
func (m Metadata) Merge(other Metadata) error {
	for _, k := range other.keys() {
		if err := m.Set(k, other[k]); err != nil {
			return err
		}
	}
	return nil
}

// Params returns the scenario inputs recorded under ParamPrefix.
func (m Metadata) Params() map[string]string {
	out := map[string]string{}
	for k, v := range m {
		if len(k) > len(ParamPrefix) && k[:len(ParamPrefix)] == ParamPrefix {
			out[k[len(ParamPrefix):]] = v
		}
	}
	return out
}

func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return fmt.Errorf("%w: metadata has more than %d pairs", errs.ErrInvalid, MaxPairs)
	}
	for k, v := range m {
		if len(k) == 0 || len(k) > MaxKeyLen {
			return fmt.Errorf("%w: metadata key %q empty or too long", errs.ErrInvalid, k)
		}
		if len(v) > MaxValLen {
			return fmt.Errorf("%w: metadata value for %q too long", errs.ErrInvalid, k)
		}
	}
	b, _ := m.MarshalStableJSON()
	if len(b) > MaxTotalJSON {
		return fmt.Errorf("%w: metadata exceeds %d bytes", errs.ErrInvalid, MaxTotalJSON)
	}
	return nil
}

func (m Metadata) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalStableJSON returns a deterministic JSON representation with keys sorted.
func (m Metadata) MarshalStableJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range m.keys() {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		if i < len(m)-1 {
			buf.WriteByte(',')
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) { return m.MarshalStableJSON() }

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}

// Value stores metadata as its stable JSON text.
func (m Metadata) Value() (driver.Value, error) {
	b, err := m.MarshalStableJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads metadata written by Value.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		return m.UnmarshalJSON([]byte(v))
	case []byte:
		return m.UnmarshalJSON(v)
	}
	return fmt.Errorf("meta: cannot scan %T", src)
}
