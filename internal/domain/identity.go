package domain

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ItemID identifies a product. It is either a string or an integer.
type ItemID struct {
	str   string
	num   int64
	isInt bool
}

func StringID(s string) ItemID {
	return ItemID{str: s}
}

func IntID(n int64) ItemID {
	return ItemID{num: n, isInt: true}
}

// ParseItemID accepts strings, Go integer kinds and uuid.UUID.
func ParseItemID(v any) (ItemID, error) {
	switch val := v.(type) {
	case ItemID:
		if val.IsZero() {
			return ItemID{}, ErrInvalidIdentifier
		}
		return val, nil
	case string:
		if val == "" {
			return ItemID{}, ErrInvalidIdentifier
		}
		return StringID(val), nil
	case uuid.UUID:
		if val == uuid.Nil {
			return ItemID{}, ErrInvalidIdentifier
		}
		return StringID(val.String()), nil
	case int, int8, int16, int32, int64:
		return IntID(reflect.ValueOf(val).Int()), nil
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(val).Uint()
		if u > 1<<63-1 {
			return ItemID{}, fmt.Errorf("%w: %d overflows int64", ErrInvalidIdentifier, u)
		}
		return IntID(int64(u)), nil
	default:
		return ItemID{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidIdentifier, v)
	}
}

func (id ItemID) IsInt() bool {
	return id.isInt
}

func (id ItemID) Int() (int64, bool) {
	return id.num, id.isInt
}

func (id ItemID) IsZero() bool {
	return !id.isInt && id.str == ""
}

func (id ItemID) String() string {
	if id.isInt {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Value returns the identifier as string or int64.
func (id ItemID) Value() any {
	if id.isInt {
		return id.num
	}
	return id.str
}

// DeriveRowID fingerprints a product together with its options.
// The options are canonicalized first, so the insertion order of keys does
// not matter. The byte format matches PHP serialize() of a key-sorted array,
// which keeps row ids produced by earlier cart versions stable.
func DeriveRowID(id ItemID, opts Options) (string, error) {
	if id.IsZero() {
		return "", ErrInvalidIdentifier
	}

	canonical, err := opts.Canonical()
	if err != nil {
		return "", fmt.Errorf("opts.Canonical: %w", err)
	}

	h := md5.New()
	h.Write([]byte(id.String()))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Options are free-form item attributes such as size or color.
type Options map[string]any

func (o Options) Get(key string) (any, bool) {
	v, ok := o[key]
	return v, ok
}

func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = cloneOptionValue(v)
	}
	return out
}

// Canonical serializes the options deterministically, keys sorted at every level.
func (o Options) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonicalMap(&buf, map[string]any(o)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate reports whether every value can be canonicalized.
func (o Options) Validate() error {
	_, err := o.Canonical()
	return err
}

func writeCanonicalMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessKey(keys[i], keys[j])
	})

	fmt.Fprintf(buf, "a:%d:{", len(keys))
	for _, k := range keys {
		writeCanonicalKey(buf, k)
		if err := writeCanonicalValue(buf, m[k]); err != nil {
			return fmt.Errorf("option[%s]: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeCanonicalValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("N;")
	case string:
		writeCanonicalString(buf, val)
	case bool:
		if val {
			buf.WriteString("b:1;")
		} else {
			buf.WriteString("b:0;")
		}
	case int, int8, int16, int32, int64:
		fmt.Fprintf(buf, "i:%d;", reflect.ValueOf(val).Int())
	case uint, uint8, uint16, uint32, uint64:
		fmt.Fprintf(buf, "i:%d;", reflect.ValueOf(val).Uint())
	case float32:
		return writeCanonicalFloat(buf, float64(val))
	case float64:
		return writeCanonicalFloat(buf, val)
	case Options:
		return writeCanonicalMap(buf, map[string]any(val))
	case map[string]any:
		return writeCanonicalMap(buf, val)
	case []string:
		fmt.Fprintf(buf, "a:%d:{", len(val))
		for i, elem := range val {
			fmt.Fprintf(buf, "i:%d;", i)
			writeCanonicalString(buf, elem)
		}
		buf.WriteByte('}')
	case []any:
		fmt.Fprintf(buf, "a:%d:{", len(val))
		for i, elem := range val {
			fmt.Fprintf(buf, "i:%d;", i)
			if err := writeCanonicalValue(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: %T", ErrUnserializableOption, v)
	}
	return nil
}

// writeCanonicalFloat writes the shortest round-trip form the way PHP's
// serialize does: plain notation for magnitudes in [1e-4, 1e17),
// otherwise a mantissa with at least one fractional digit, e.g. 1.0E+25.
func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %v", ErrUnserializableOption, f)
	}
	buf.WriteString("d:")
	buf.WriteString(formatCanonicalFloat(f))
	buf.WriteByte(';')
	return nil
}

func formatCanonicalFloat(f float64) string {
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(sci, "e")
	e, _ := strconv.Atoi(exp)

	decpt := e + 1
	if decpt >= -3 && decpt <= 17 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	sign := "+"
	if e < 0 {
		sign = "-"
		e = -e
	}
	return fmt.Sprintf("%sE%s%d", mant, sign, e)
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	fmt.Fprintf(buf, "s:%d:\"%s\";", len(s), s)
}

// integer-looking keys are stored as integers, as PHP arrays do
func writeCanonicalKey(buf *bytes.Buffer, k string) {
	if n, ok := intKey(k); ok {
		fmt.Fprintf(buf, "i:%d;", n)
		return
	}
	writeCanonicalString(buf, k)
}

func lessKey(a, b string) bool {
	na, aInt := intKey(a)
	nb, bInt := intKey(b)
	switch {
	case aInt && bInt:
		return na < nb
	case aInt != bInt:
		return aInt
	default:
		return a < b
	}
}

func intKey(k string) (int64, bool) {
	n, err := strconv.ParseInt(k, 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != k {
		return 0, false
	}
	return n, true
}

func cloneOptionValue(v any) any {
	switch val := v.(type) {
	case Options:
		return val.Clone()
	case map[string]any:
		return map[string]any(Options(val).Clone())
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneOptionValue(elem)
		}
		return out
	default:
		return v
	}
}
