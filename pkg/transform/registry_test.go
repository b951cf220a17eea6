package transform

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ScopeIsolation(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", TypeOf[string](), TypeOf[int](), func(input any, _ *Scope) (any, error) {
		return len(input.(string)), nil
	})
	reg.Register("b", TypeOf[string](), TypeOf[int](), func(any, *Scope) (any, error) {
		return -1, nil
	})

	n, err := Transform[int](reg.ForContext("a"), "four")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = Transform[int](reg.ForContext("b"), "four")
	require.NoError(t, err)
	assert.Equal(t, -1, n)

	_, err = Transform[int](reg.ForContext("c"), "four")
	assert.ErrorContains(t, err, `context "c"`)
	assert.Equal(t, 2, reg.Contexts())
	assert.True(t, reg.HasContext("a"))
	assert.False(t, reg.HasContext("c"))
}

func TestRegistry_SnapshotIsReadOnly(t *testing.T) {
	reg := NewRegistry()
	scope := reg.ForContext("late")
	reg.Register("late", TypeOf[string](), TypeOf[string](), func(input any, _ *Scope) (any, error) {
		return input, nil
	})

	_, err := Transform[string](scope, "x")
	assert.Error(t, err, "registrations after ForContext are not visible")

	out, err := Transform[string](reg.ForContext("late"), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestRegistry_NestedTransformsUseScope(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ctx", TypeOf[int](), TypeOf[string](), func(input any, _ *Scope) (any, error) {
		if input.(int) < 0 {
			return nil, errors.New("negative")
		}
		return "n", nil
	})
	reg.Register("ctx", TypeOf[[]int](), TypeOf[string](), func(input any, scope *Scope) (any, error) {
		out := ""
		for _, n := range input.([]int) {
			s, err := Transform[string](scope, n)
			if err != nil {
				return nil, err
			}
			out += s
		}
		return out, nil
	})

	scope := reg.ForContext("ctx")
	assert.Equal(t, "ctx", scope.Name())

	out, err := Transform[string](scope, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "nnn", out)

	_, err = Transform[string](scope, []int{1, -2})
	assert.EqualError(t, err, "negative")
}

func TestTransform_WrongResultType(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ctx", TypeOf[string](), TypeOf[int](), func(any, *Scope) (any, error) {
		return "not an int", nil
	})

	_, err := Transform[int](reg.ForContext("ctx"), "x")
	assert.ErrorContains(t, err, "returned string")
}

func TestTransform_NilInput(t *testing.T) {
	_, err := NewRegistry().ForContext("ctx").Transform(nil, reflect.TypeOf(0))
	assert.Error(t, err)
}

func TestTypeOf_Interface(t *testing.T) {
	assert.Equal(t, reflect.Interface, TypeOf[error]().Kind())
	assert.Equal(t, reflect.Map, TypeOf[map[string]any]().Kind())
}
