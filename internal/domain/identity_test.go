package domain_test

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRowID(t *testing.T) {
	tests := []struct {
		name string
		id   domain.ItemID
		opts domain.Options
		want string
	}{
		{
			name: "int id with options",
			id:   domain.IntID(1),
			opts: domain.Options{"size": "XL", "color": "red"},
			want: "07d5da5550494c62daf9993cf954303f",
		},
		{
			name: "int id without options",
			id:   domain.IntID(1),
			opts: nil,
			want: "027c91341fd5cf4d2579b49c4b6a90da",
		},
		{
			name: "string id",
			id:   domain.StringID("sku-42"),
			opts: domain.Options{"size": "M"},
			want: "da1c7bbaf870d68d6f520d61c044ea71",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.DeriveRowID(tt.id, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveRowID_InsertionOrderIrrelevant(t *testing.T) {
	a := domain.Options{}
	a["color"] = "red"
	a["size"] = "XL"
	a["extras"] = map[string]any{"b": 2, "a": true}

	b := domain.Options{}
	b["extras"] = map[string]any{"a": true, "b": 2}
	b["size"] = "XL"
	b["color"] = "red"

	idA, err := domain.DeriveRowID(domain.IntID(7), a)
	require.NoError(t, err)
	idB, err := domain.DeriveRowID(domain.IntID(7), b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.Len(t, idA, 32)
}

func TestDeriveRowID_ChangesWithInput(t *testing.T) {
	base := mustRowID(t, domain.IntID(1), domain.Options{"size": "XL", "color": "red"})

	assert.NotEqual(t, base, mustRowID(t, domain.IntID(1), domain.Options{"size": "L", "color": "red"}))
	assert.NotEqual(t, base, mustRowID(t, domain.IntID(2), domain.Options{"size": "XL", "color": "red"}))
	assert.NotEqual(t, base, mustRowID(t, domain.IntID(1), domain.Options{"size": "XL"}))
	assert.NotEqual(t, base, mustRowID(t, domain.IntID(1), domain.Options{"size": "XL", "color": "red", "gift": true}))
}

func TestDeriveRowID_NormalizesUnicode(t *testing.T) {
	composed := domain.Options{"name": "café"}
	decomposed := domain.Options{"name": "cafe\u0301"}

	assert.Equal(t, mustRowID(t, domain.StringID("x"), composed), mustRowID(t, domain.StringID("x"), decomposed))
}

func TestDeriveRowID_Errors(t *testing.T) {
	_, err := domain.DeriveRowID(domain.IntID(1), domain.Options{"ratio": math.NaN()})
	require.ErrorIs(t, err, domain.ErrUnserializableOption)

	_, err = domain.DeriveRowID(domain.IntID(1), domain.Options{"ratio": math.Inf(1)})
	require.ErrorIs(t, err, domain.ErrUnserializableOption)

	_, err = domain.DeriveRowID(domain.IntID(1), domain.Options{"nested": map[string]any{"c": struct{}{}}})
	require.ErrorIs(t, err, domain.ErrUnserializableOption)

	_, err = domain.DeriveRowID(domain.ItemID{}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestDeriveRowID_FloatOption(t *testing.T) {
	got := mustRowID(t, domain.IntID(1), domain.Options{"ratio": 1.5})
	assert.Equal(t, "a791a610938d03977967cbe2d4a3a6c6", got)

	assert.Equal(t, got, mustRowID(t, domain.IntID(1), domain.Options{"ratio": float32(1.5)}))
	assert.NotEqual(t,
		mustRowID(t, domain.IntID(1), domain.Options{"ratio": 2.0}),
		mustRowID(t, domain.IntID(1), domain.Options{"ratio": 2}),
	)
}

func TestOptionsCanonical_Floats(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{input: 1.5, want: "d:1.5;"},
		{input: 2.0, want: "d:2;"},
		{input: -0.25, want: "d:-0.25;"},
		{input: 0.1, want: "d:0.1;"},
		{input: 1e6, want: "d:1000000;"},
		{input: 0.0001, want: "d:0.0001;"},
		{input: 1e-5, want: "d:1.0E-5;"},
		{input: 1.5e-7, want: "d:1.5E-7;"},
		{input: 1e20, want: "d:1.0E+20;"},
		{input: 123456789012345678, want: "d:1.2345678901234568E+17;"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := domain.Options{"v": tt.input}.Canonical()
			require.NoError(t, err)
			assert.Equal(t, `a:1:{s:1:"v";`+tt.want+`}`, string(got))
		})
	}
}

func TestOptionsCanonical(t *testing.T) {
	opts := domain.Options{
		"size":  "XL",
		"color": "red",
		"10":    "ten",
		"2":     "two",
		"gift":  false,
		"tags":  []string{"a", "b"},
		"none":  nil,
	}

	got, err := opts.Canonical()
	require.NoError(t, err)

	want := `a:7:{i:2;s:3:"two";i:10;s:3:"ten";s:5:"color";s:3:"red";s:4:"gift";b:0;s:4:"none";N;s:4:"size";s:2:"XL";s:4:"tags";a:2:{i:0;s:1:"a";i:1;s:1:"b";}}`
	assert.Equal(t, want, string(got))
}

func TestParseItemID(t *testing.T) {
	u := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")

	tests := []struct {
		name    string
		input   any
		want    domain.ItemID
		wantErr bool
	}{
		{name: "string", input: "abc", want: domain.StringID("abc")},
		{name: "int", input: 42, want: domain.IntID(42)},
		{name: "int64", input: int64(-3), want: domain.IntID(-3)},
		{name: "uint32", input: uint32(9), want: domain.IntID(9)},
		{name: "uuid", input: u, want: domain.StringID(u.String())},
		{name: "empty string", input: "", wantErr: true},
		{name: "float", input: 1.5, wantErr: true},
		{name: "nil", input: nil, wantErr: true},
		{name: "nil uuid", input: uuid.Nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.ParseItemID(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func mustRowID(t *testing.T, id domain.ItemID, opts domain.Options) string {
	t.Helper()

	rowID, err := domain.DeriveRowID(id, opts)
	require.NoError(t, err)
	return rowID
}
