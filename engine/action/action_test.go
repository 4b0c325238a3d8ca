package action

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	simpleProfile = "/interaction_profiles/khr/simple_controller"
	viveProfile   = "/interaction_profiles/htc/vive_controller"
)

func mustPath(t *testing.T, reg path.Registry, s string) path.ID {
	t.Helper()
	id, err := reg.GetOrCreate(s)
	require.NoError(t, err)
	return id
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"gameplay", true},
		{"grab_object-1.left", true},
		{"", false},
		{"Gameplay", false},
		{"has space", false},
		{"slash/inside", false},
		{string(make([]byte, MaxNameLength+1)), false},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, result.ErrNameInvalid, tt.name)
		}
	}
}

func TestCreateActionSetNames(t *testing.T) {
	ctx := NewContext()

	set, err := ctx.CreateActionSet("gameplay", "Gameplay", 0)
	require.NoError(t, err)
	assert.Equal(t, "gameplay", set.Name())

	_, err = ctx.CreateActionSet("gameplay", "Other", 0)
	assert.ErrorIs(t, err, result.ErrNameDuplicated)
	_, err = ctx.CreateActionSet("other", "Gameplay", 0)
	assert.ErrorIs(t, err, result.ErrLocalizedNameDuplicated)
	_, err = ctx.CreateActionSet("menu", "", 0)
	assert.ErrorIs(t, err, result.ErrLocalizedNameInvalid)

	set.Destroy()
	set.Destroy()
	again, err := ctx.CreateActionSet("gameplay", "Gameplay", 1)
	require.NoError(t, err, "names are freed when the set is destroyed")
	assert.NotEqual(t, set.Key(), again.Key())
}

func TestCreateActionValidation(t *testing.T) {
	ctx := NewContext()
	reg := ctx.Paths()
	set, err := ctx.CreateActionSet("gameplay", "Gameplay", 0)
	require.NoError(t, err)

	left := reg.SubactionID(path.SubactionLeft)
	right := reg.SubactionID(path.SubactionRight)

	grab, err := set.CreateAction("grab", "Grab", ActionTypeBoolean, []path.ID{left, right})
	require.NoError(t, err)
	assert.True(t, grab.Subactions().Has(path.SubactionLeft))
	assert.False(t, grab.Subactions().Any)
	assert.Equal(t, set, grab.Set())

	free, err := set.CreateAction("look", "Look", ActionTypeVector2f, nil)
	require.NoError(t, err)
	assert.True(t, free.Subactions().Any)

	_, err = set.CreateAction("grab", "Grab Again", ActionTypeBoolean, nil)
	assert.ErrorIs(t, err, result.ErrNameDuplicated)
	_, err = set.CreateAction("grab2", "Grab", ActionTypeBoolean, nil)
	assert.ErrorIs(t, err, result.ErrLocalizedNameDuplicated)
	_, err = set.CreateAction("Grab", "Grab Upper", ActionTypeBoolean, nil)
	assert.ErrorIs(t, err, result.ErrNameInvalid)
	_, err = set.CreateAction("bad_type", "Bad Type", ActionType(7), nil)
	assert.ErrorIs(t, err, result.ErrValidationFailure)

	notTop := mustPath(t, reg, "/user/hand/left/input")
	_, err = set.CreateAction("nested", "Nested", ActionTypeBoolean, []path.ID{notTop})
	assert.ErrorIs(t, err, result.ErrPathUnsupported)
	_, err = set.CreateAction("twice", "Twice", ActionTypeBoolean, []path.ID{left, left})
	assert.ErrorIs(t, err, result.ErrPathUnsupported)

	assert.Len(t, set.Actions(), 2)
	grab.Destroy()
	assert.Len(t, set.Actions(), 1)
	_, err = set.CreateAction("grab", "Grab", ActionTypeBoolean, nil)
	assert.NoError(t, err, "destroyed action names are reusable")
}

func TestSuggestBindingsValidation(t *testing.T) {
	ctx := NewContext()
	reg := ctx.Paths()
	set, err := ctx.CreateActionSet("gameplay", "Gameplay", 0)
	require.NoError(t, err)
	sel, err := set.CreateAction("select", "Select", ActionTypeBoolean, nil)
	require.NoError(t, err)

	unknown := mustPath(t, reg, "/interaction_profiles/acme/unknown")
	err = ctx.SuggestBindings(unknown, []SuggestedBinding{{Action: sel, Binding: mustPath(t, reg, "/user/hand/left/input/select/click")}})
	assert.ErrorIs(t, err, result.ErrPathUnsupported)

	simple := mustPath(t, reg, simpleProfile)
	err = ctx.SuggestBindings(simple, []SuggestedBinding{{Action: sel, Binding: mustPath(t, reg, "/user/hand/left/input/trigger/value")}})
	assert.ErrorIs(t, err, result.ErrPathUnsupported)
	assert.False(t, ctx.HasSuggestions(simpleProfile))

	err = ctx.SuggestBindings(simple, []SuggestedBinding{
		{Action: sel, Binding: mustPath(t, reg, "/user/hand/left/input/select")},
		{Action: sel, Binding: mustPath(t, reg, "/user/hand/right/input/select/click")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/user/hand/left/input/select", "/user/hand/right/input/select/click"},
		ctx.SuggestedBindings(simpleProfile, sel.Key()))

	// A second suggestion for the same profile replaces the first.
	err = ctx.SuggestBindings(simple, []SuggestedBinding{{Action: sel, Binding: mustPath(t, reg, "/user/hand/left/input/menu/click")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/user/hand/left/input/menu/click"}, ctx.SuggestedBindings(simpleProfile, sel.Key()))
}
