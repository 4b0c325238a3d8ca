package handle

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGet(t *testing.T) {
	tbl := NewTable()
	inst, err := tbl.Create(KindInstance, NullID, "instance", nil)
	require.NoError(t, err)

	obj, err := tbl.Get(inst, KindInstance)
	require.NoError(t, err)
	assert.Equal(t, "instance", obj)

	_, err = tbl.Get(inst, KindSession)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
	_, err = tbl.Get(ID(77), KindInstance)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
}

func TestDestroyPostOrderAndIdempotent(t *testing.T) {
	tbl := NewTable()
	var order []string
	rec := func(name string) Destructor {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	inst, _ := tbl.Create(KindInstance, NullID, nil, rec("instance"))
	sess, _ := tbl.Create(KindSession, inst, nil, rec("session"))
	_, _ = tbl.Create(KindSpace, sess, nil, rec("space"))
	_, _ = tbl.Create(KindSwapchain, sess, nil, rec("swapchain"))
	_, _ = tbl.Create(KindActionSet, inst, nil, rec("actionset"))
	assert.Equal(t, 5, tbl.Live())

	require.NoError(t, tbl.Destroy(inst))
	assert.Equal(t, []string{"actionset", "swapchain", "space", "session", "instance"}, order)
	assert.Equal(t, 0, tbl.Live())
	assert.Equal(t, StateDestroyed, tbl.State(sess))
	assert.Empty(t, tbl.Children(inst))

	require.NoError(t, tbl.Destroy(inst), "second destroy is a no-op")
	assert.Len(t, order, 5)

	_, err := tbl.Get(sess, KindSession)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
}

func TestDestroyChildDetachesFromParent(t *testing.T) {
	tbl := NewTable()
	inst, _ := tbl.Create(KindInstance, NullID, nil, nil)
	a, _ := tbl.Create(KindActionSet, inst, nil, nil)
	b, _ := tbl.Create(KindActionSet, inst, nil, nil)

	require.NoError(t, tbl.Destroy(a))
	assert.Equal(t, []ID{b}, tbl.Children(inst))
	assert.Equal(t, inst, tbl.Parent(b))
}

func TestCreateUnderDeadParent(t *testing.T) {
	tbl := NewTable()
	inst, _ := tbl.Create(KindInstance, NullID, nil, nil)
	require.NoError(t, tbl.Destroy(inst))
	_, err := tbl.Create(KindSession, inst, nil, nil)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
}

func TestChildLimit(t *testing.T) {
	tbl := NewTable()
	inst, _ := tbl.Create(KindInstance, NullID, nil, nil)
	for i := 0; i < MaxChildren; i++ {
		_, err := tbl.Create(KindActionSet, inst, nil, nil)
		require.NoError(t, err)
	}
	_, err := tbl.Create(KindActionSet, inst, nil, nil)
	assert.ErrorIs(t, err, result.ErrLimitReached)
}

func TestDestroyJoinsErrors(t *testing.T) {
	tbl := NewTable()
	boom := errors.New("boom")
	inst, _ := tbl.Create(KindInstance, NullID, nil, func() error { return boom })
	_, _ = tbl.Create(KindSession, inst, nil, func() error { return boom })
	err := tbl.Destroy(inst)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tbl.Live())
}

func TestRefCell(t *testing.T) {
	zeroed := 0
	c := NewRefCell("data", func(string) { zeroed++ })
	c.Retain()
	assert.Equal(t, int32(2), c.Refs())
	assert.False(t, c.Release())
	assert.Equal(t, 0, zeroed)
	assert.True(t, c.Release())
	assert.Equal(t, 1, zeroed)
	assert.Equal(t, "data", c.Value())
}
