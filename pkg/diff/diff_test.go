package diff_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/polkagate/poolkit/pkg/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		original *string
		edited   *string
		want     diff.Change[string]
	}{
		{"both absent", nil, nil, diff.Change[string]{}},
		{"cleared", diff.Ptr("A"), nil, diff.Clear[string]()},
		{"set from absent", nil, diff.Ptr("B"), diff.SetTo("B")},
		{"replaced", diff.Ptr("A"), diff.Ptr("B"), diff.SetTo("B")},
		{"same value", diff.Ptr("A"), diff.Ptr("A"), diff.Change[string]{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, diff.Diff(tt.original, tt.edited))
		})
	}
}

func TestDiffText_NormalisesBeforeComparing(t *testing.T) {
	// "é" precomposed vs. "e" + combining acute.
	assert.True(t, diff.DiffText("Caf\u00e9 Pool", "Cafe\u0301 Pool ").IsZero())
	assert.Equal(t, diff.Cleared, diff.DiffText("Pool", "   ").Kind)
	assert.True(t, diff.DiffText("", "").IsZero())
	assert.Equal(t, diff.SetTo("New"), diff.DiffText("Old", "New"))
}

func TestDiffAddress(t *testing.T) {
	assert.True(t, diff.DiffAddress("", "").IsZero())
	assert.Equal(t, diff.Cleared, diff.DiffAddress("5Grw", "").Kind)
	assert.Equal(t, diff.SetTo("5Fz"), diff.DiffAddress("5Grw", "5Fz"))
}

func TestDiffPercent_Clamps(t *testing.T) {
	t.Run("above range clamps to 100", func(t *testing.T) {
		c := diff.DiffPercent(diff.Ptr(10.0), diff.Ptr(250.0))
		assert.Equal(t, diff.SetTo(100.0), c)
	})

	t.Run("clamped value equal to original is unchanged", func(t *testing.T) {
		c := diff.DiffPercent(diff.Ptr(100.0), diff.Ptr(140.0))
		assert.True(t, c.IsZero())
	})

	t.Run("negative clamps to zero", func(t *testing.T) {
		c := diff.DiffPercent(nil, diff.Ptr(-3.0))
		assert.Equal(t, diff.SetTo(0.0), c)
	})

	t.Run("zero percent is a value, not an absence", func(t *testing.T) {
		c := diff.DiffPercent(diff.Ptr(5.0), diff.Ptr(0.0))
		assert.Equal(t, diff.SetTo(0.0), c)
	})

	t.Run("NaN leaves the field unchanged", func(t *testing.T) {
		orig := diff.Ptr(5.0)
		c := diff.DiffPercent(orig, diff.Ptr(math.NaN()))
		assert.True(t, c.IsZero())
		assert.True(t, diff.DiffPercent(c.Apply(orig), diff.Ptr(math.NaN())).IsZero())
		assert.True(t, diff.DiffPercent(nil, diff.Ptr(math.NaN())).IsZero())
	})
}

func TestClamp_NaN(t *testing.T) {
	assert.Equal(t, 0.0, diff.Clamp(math.NaN(), 0.0, 100.0))
	assert.Equal(t, 100.0, diff.Clamp(math.Inf(1), 0.0, 100.0))
}

func TestChange_Apply(t *testing.T) {
	orig := diff.Ptr("A")
	assert.Equal(t, orig, diff.Change[string]{}.Apply(orig))
	assert.Nil(t, diff.Clear[string]().Apply(orig))
	assert.Equal(t, "B", *diff.SetTo("B").Apply(orig))
}

func TestChange_JSON(t *testing.T) {
	b, err := json.Marshal(diff.SetTo("Z"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"set","value":"Z"}`, string(b))

	b, err = json.Marshal(diff.Clear[string]())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"cleared"}`, string(b))

	var c diff.Change[float64]
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"set","value":12.5}`), &c))
	assert.Equal(t, diff.SetTo(12.5), c)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &c))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "unchanged", diff.Unchanged.String())
	assert.Equal(t, "cleared", diff.Cleared.String())
	assert.Equal(t, "set", diff.Set.String())
	assert.Equal(t, "kind(7)", diff.Kind(7).String())
}
