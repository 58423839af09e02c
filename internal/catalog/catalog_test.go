package catalog

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productsJSON = `[
  {"id": 7, "name": "Widget", "price": 10.00, "stock": 5, "images": ["a.png", "b.png"]},
  {"id": 3, "name": "Gadget", "price": 4.5, "active": true}
]`

func TestParsePreservesFieldOrder(t *testing.T) {
	f, err := Parse([]byte(productsJSON))
	require.NoError(t, err)
	require.Len(t, f.Records, 2)

	assert.Equal(t, []string{"id", "name", "price", "stock", "images"}, f.Records[0].Fields())

	data, err := f.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"price": 10.00`)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, f.Records[1].Fields(), again.Records[1].Fields())
	assert.Equal(t, []int{3, 7}, again.IDs())
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not array":    `{"id": 1}`,
		"missing id":   `[{"name": "x"}]`,
		"float id":     `[{"id": 1.5}]`,
		"duplicate id": `[{"id": 1}, {"id": 1}]`,
		"truncated":    `[{"id": 1}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestParseEmptyIsEmptyCatalog(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Records)

	data, err := f.Encode()
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestRecordSetDeleteClone(t *testing.T) {
	r := RecordOf("id", 1, "name", "Mug", "tags", []any{"kitchen"})
	c := r.Clone()

	c.Set("price", json.Number("3.50"))
	c.Delete("name")
	c.fields["tags"].([]any)[0] = "office"

	assert.Equal(t, []string{"id", "name", "tags"}, r.Fields())
	assert.Equal(t, []string{"id", "tags", "price"}, c.Fields())
	assert.Equal(t, "kitchen", r.fields["tags"].([]any)[0])
	assert.Equal(t, "Mug", r.Name("name"))
	assert.Equal(t, "#1", c.Name("name"))
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"formatting noise", json.Number("10.00"), json.Number("10"), true},
		{"float noise", 0.1 + 0.2, json.Number("0.3"), true},
		{"sub-cent", json.Number("10.001"), json.Number("10.004"), true},
		{"different price", json.Number("10.00"), json.Number("8.00"), false},
		{"number vs string", json.Number("5"), "5", false},
		{"strings", "Widget", "Widget", true},
		{"nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"same list", []any{"a.png", json.Number("1.0")}, []any{"a.png", json.Number("1")}, true},
		{"reordered list", []any{"a.png", "b.png"}, []any{"b.png", "a.png"}, false},
		{"objects", map[string]any{"w": json.Number("2"), "h": "x"}, map[string]any{"h": "x", "w": 2.0}, true},
		{"object vs list", map[string]any{}, []any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b))
		})
	}
}

func TestFormatValueAndLabel(t *testing.T) {
	assert.Equal(t, "10.00", FormatValue(json.Number("10.00")))
	assert.Equal(t, "8.50", FormatValue(json.Number("8.5")))
	assert.Equal(t, "5", FormatValue(json.Number("5")))
	assert.Equal(t, "2 items", FormatValue([]any{"a", "b"}))
	assert.Equal(t, "true", FormatValue(true))

	assert.Equal(t, "Price", Label("price"))
	assert.Equal(t, "Stock count", Label("stock_count"))
	assert.Equal(t, "Image urls", Label("imageUrls"))
	assert.Equal(t, "ID", Label("id"))
}

func TestStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/repo")

	missing, err := store.Load("products.json")
	require.NoError(t, err)
	assert.Empty(t, missing.Records)

	f, err := Parse([]byte(productsJSON))
	require.NoError(t, err)
	f.Remove(3)
	require.NoError(t, store.Save("data/products.json", f))

	loaded, err := store.Load("data/products.json")
	require.NoError(t, err)
	assert.Equal(t, []int{7}, loaded.IDs())

	require.NoError(t, afero.WriteFile(fs, "/repo/bad.json", []byte("{"), 0o644))
	_, err = store.Load("bad.json")
	assert.Error(t, err)

	require.NoError(t, store.Delete("data/products.json"))
	require.NoError(t, store.Delete("data/products.json"))
}

func TestFileInsertReplace(t *testing.T) {
	f := &File{}
	f.Insert(5, RecordOf("id", 1))
	f.Insert(0, RecordOf("id", 2))
	f.Replace(RecordOf("id", 1, "name", "new"))
	f.Replace(RecordOf("id", 9))

	rec, i := f.Find(1)
	require.NotNil(t, rec)
	assert.Equal(t, 1, i)
	assert.Equal(t, "new", rec.Name("name"))
	assert.Equal(t, []int{1, 2, 9}, f.IDs())
	assert.False(t, f.Remove(42))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(Definition{Path: "products.json", Entity: "product"}, Definition{Path: "coupons.json", Entity: "coupon", NameField: "code"})

	d, ok := reg.Lookup("products.json")
	require.True(t, ok)
	assert.Equal(t, "name", d.NameField)
	_, ok = reg.Lookup("README.md")
	assert.False(t, ok)
	assert.Equal(t, []string{"products.json", "coupons.json"}, reg.Paths())
}
