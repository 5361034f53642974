package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPanicsOnBadInput(t *testing.T) {
	f := func(context.Context, Config) (Repository, error) { return nil, nil }

	assert.Panics(t, func() { Register("", f) })
	assert.Panics(t, func() { Register("nil-factory", nil) })

	Register("registry-test", f)
	assert.Panics(t, func() { Register("registry-test", f) })
	assert.Contains(t, Kinds(), "registry-test")
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	_, err = New(context.Background(), Config{Kind: "does-not-exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage.kind=does-not-exist")
}

func TestScopeCanRead(t *testing.T) {
	assert.True(t, Scope{}.CanRead(""))
	assert.False(t, Scope{}.CanRead("alice"))
	assert.True(t, Scope{Owner: "alice"}.CanRead("alice"))
	assert.True(t, Scope{Admin: true}.CanRead("bob"))
}

func TestChronologicalReversesHistory(t *testing.T) {
	got := Chronological([]ScoreRecord{{Score: 0.3}, {Score: 0.2}, {Score: 0.1}})
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)
}
