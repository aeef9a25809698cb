package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field is a semantic transaction attribute a column can be mapped to.
type Field string

const (
	FieldDate       Field = "date"
	FieldAmount     Field = "amount"
	FieldMerchant   Field = "merchant"
	FieldType       Field = "type"
	FieldMemo       Field = "memo"
	FieldAccount    Field = "account"
	FieldWithdrawal Field = "withdrawal"
	FieldDeposit    Field = "deposit"
)

// Fields lists every mappable field in suggestion priority order.
var Fields = []Field{
	FieldDate,
	FieldAmount,
	FieldMerchant,
	FieldType,
	FieldMemo,
	FieldAccount,
	FieldWithdrawal,
	FieldDeposit,
}

func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// ColumnRef points at a source column by header text, by 0-based index, or both.
// When both are set the index wins.
type ColumnRef struct {
	Header string
	Index  *int
}

func HeaderRef(header string) ColumnRef {
	return ColumnRef{Header: header}
}

func IndexRef(i int) ColumnRef {
	return ColumnRef{Index: &i}
}

func (c ColumnRef) IsZero() bool {
	return c.Header == "" && c.Index == nil
}

func (c ColumnRef) String() string {
	if c.Index != nil {
		return fmt.Sprintf("#%d", *c.Index)
	}
	return c.Header
}

// Resolve returns the column index c refers to within headers.
func (c ColumnRef) Resolve(headers []string) (int, error) {
	if c.Index != nil {
		if *c.Index < 0 || *c.Index >= len(headers) {
			return -1, fmt.Errorf("%w: column index %d out of range (0..%d)", ErrInvalidMapping, *c.Index, len(headers)-1)
		}
		return *c.Index, nil
	}
	want := strings.TrimSpace(c.Header)
	if want == "" {
		return -1, fmt.Errorf("%w: empty column reference", ErrInvalidMapping)
	}
	for i, h := range headers {
		if strings.TrimSpace(h) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: column %q not found", ErrInvalidMapping, want)
}

func (c ColumnRef) MarshalJSON() ([]byte, error) {
	switch {
	case c.Index != nil && c.Header != "":
		return json.Marshal(struct {
			Header string `json:"header"`
			Index  int    `json:"index"`
		}{c.Header, *c.Index})
	case c.Index != nil:
		return json.Marshal(*c.Index)
	default:
		return json.Marshal(c.Header)
	}
}

func (c *ColumnRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*c = ColumnRef{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		return json.Unmarshal(b, &c.Header)
	case '{':
		var obj struct {
			Header string `json:"header"`
			Index  *int   `json:"index"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		c.Header, c.Index = obj.Header, obj.Index
		return nil
	default:
		var i int
		if err := json.Unmarshal(b, &i); err != nil {
			return fmt.Errorf("%w: column reference must be a header, an index or an object", ErrInvalidMapping)
		}
		c.Index = &i
		return nil
	}
}

// ColumnMapping assigns source columns to semantic fields.
type ColumnMapping map[Field]ColumnRef

// Has reports whether f is mapped to a non-empty reference.
func (m ColumnMapping) Has(f Field) bool {
	ref, ok := m[f]
	return ok && !ref.IsZero()
}

// Validate checks field names and the mandatory date/amount columns.
// Split deposit/withdrawal columns stand in for amount.
func (m ColumnMapping) Validate() error {
	var problems []string
	for f := range m {
		if !f.Valid() {
			problems = append(problems, fmt.Sprintf("unknown field %q", f))
		}
	}
	sort.Strings(problems)
	if !m.Has(FieldDate) {
		problems = append(problems, "date column is required")
	}
	if !m.Has(FieldAmount) && !m.Has(FieldDeposit) && !m.Has(FieldWithdrawal) {
		problems = append(problems, "amount column is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(problems, "; "))
	}
	return nil
}

// Resolve maps every set field to a column index of headers.
func (m ColumnMapping) Resolve(headers []string) (map[Field]int, error) {
	out := make(map[Field]int, len(m))
	for _, f := range Fields {
		ref, ok := m[f]
		if !ok || ref.IsZero() {
			continue
		}
		idx, err := ref.Resolve(headers)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		out[f] = idx
	}
	return out, nil
}

// Clone returns a shallow copy safe to extend.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
