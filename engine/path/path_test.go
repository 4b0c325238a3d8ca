package path

import (
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternRoundTrip(t *testing.T) {
	r := NewRegistry()
	strs := []string{
		"/user/hand/left/input/select/click",
		"/interaction_profiles/khr/simple_controller",
		"/user/hand/right/output/haptic",
	}
	ids := make(map[ID]string)
	for _, s := range strs {
		id, err := r.GetOrCreate(s)
		require.NoError(t, err)
		got, err := r.String(id)
		require.NoError(t, err)
		assert.Equal(t, s, got)
		ids[id] = s
	}
	assert.Len(t, ids, len(strs), "distinct strings get distinct ids")

	again, err := r.GetOrCreate(strs[0])
	require.NoError(t, err)
	assert.Equal(t, strs[0], ids[again], "same string gets the same id")
	assert.Equal(t, 2, r.Refs(again))
	r.Release(again)
	assert.Equal(t, 1, r.Refs(again))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"/user", true},
		{"/user/hand/left/input/trackpad/x", true},
		{"/a.b-c_d/0", true},
		{"", false},
		{"user", false},
		{"/user/", false},
		{"//user", false},
		{"/user/Hand", false},
		{"/user/..", false},
		{"/user/ha nd", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.path), func(t *testing.T) {
			err := Validate(tt.path)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, result.ErrPathFormatInvalid)
			}
		})
	}
}

func TestStringUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.String(NullID)
	assert.ErrorIs(t, err, result.ErrPathInvalid)
	_, err = r.String(ID(9999))
	assert.ErrorIs(t, err, result.ErrPathInvalid)
	assert.Equal(t, NullID, r.Lookup("/never/interned"))
}

func TestClassifyReserved(t *testing.T) {
	r := NewRegistry()
	for _, kind := range Subactions {
		id := r.Lookup(kind.String())
		require.NotEqual(t, NullID, id, kind.String())
		assert.Equal(t, id, r.SubactionID(kind))
		got, ok := r.Classify(id)
		assert.True(t, ok)
		assert.Equal(t, kind, got)
	}

	got, ok := r.Classify(r.Lookup(GamepadAlias))
	assert.True(t, ok)
	assert.Equal(t, SubactionGamepad, got)

	other, err := r.GetOrCreate("/user/hand/left/input")
	require.NoError(t, err)
	_, ok = r.Classify(other)
	assert.False(t, ok)
}

func TestAttach(t *testing.T) {
	r := NewRegistry()
	id, err := r.GetOrCreate("/interaction_profiles/valve/index_controller")
	require.NoError(t, err)
	_, ok := r.Attached(id)
	assert.False(t, ok)
	r.Attach(id, "table")
	v, ok := r.Attached(id)
	assert.True(t, ok)
	assert.Equal(t, "table", v)
}

func TestSubactionSet(t *testing.T) {
	var s SubactionSet
	assert.True(t, s.Empty())
	s = s.With(SubactionLeft).With(SubactionRight)
	assert.True(t, s.Has(SubactionLeft))
	assert.False(t, s.Has(SubactionHead))
	assert.Equal(t, []Subaction{SubactionLeft, SubactionRight}, s.Kinds())

	all := AllSubactions()
	assert.True(t, all.Any)
	assert.Len(t, all.Kinds(), int(SubactionCount))
	assert.True(t, s.Or(SubactionSet{Any: true}).Any)
}
