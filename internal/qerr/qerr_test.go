package qerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClassification(t *testing.T) {
	assert.True(t, CodeUpdatingSlot.Static())
	assert.True(t, CodeUndefinedVar.Static())
	assert.True(t, CodeNoContext.Static())
	assert.False(t, CodeType.Static())
	assert.False(t, CodeDivByZero.Static())

	assert.False(t, CodeInterrupted.Catchable())
	assert.False(t, CodeQuota.Catchable())
	assert.False(t, CodeUndefinedVar.Catchable())
	assert.True(t, CodeEBV.Catchable())
}

func TestErrorString(t *testing.T) {
	err := New(CodeDivByZero, Info{Line: 3, Column: 7}, "division by zero")
	assert.Equal(t, "3:7: [FOAR0001] division by zero", err.Error())

	err = WithValue(CodeCast, Info{}, "abc", "cannot cast to xs:integer")
	assert.Equal(t, "[FORG0001] cannot cast to xs:integer (abc)", err.Error())
}

func TestWrappedHelpers(t *testing.T) {
	base := New(CodeUndefinedVar, Info{File: "q.cue", Line: 1, Column: 2}, "undefined variable $x")
	wrapped := fmt.Errorf("compile: %w", base)

	assert.True(t, Is(wrapped, CodeUndefinedVar))
	assert.False(t, Is(wrapped, CodeType))
	assert.True(t, IsStatic(wrapped))
	assert.False(t, IsStatic(errors.New("plain")))

	qe, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "q.cue:1:2", qe.Info.String())
}

func TestLocate(t *testing.T) {
	err := Locate(New(CodeType, Info{}, "bad"), Info{Line: 5, Column: 1})
	qe, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, 5, qe.Info.Line)

	// An existing position is kept.
	err = Locate(qe, Info{Line: 9, Column: 9})
	qe, _ = As(err)
	assert.Equal(t, 5, qe.Info.Line)

	plain := errors.New("x")
	assert.Same(t, plain, Locate(plain, Info{Line: 1}))
}

func TestMatch(t *testing.T) {
	err := New(CodeDivByZero, Info{}, "division by zero")
	tests := []struct {
		patterns []string
		want     bool
	}{
		{[]string{"*"}, true},
		{[]string{"err:*"}, true},
		{[]string{"*:FOAR0001"}, true},
		{[]string{"err:FOAR0001"}, true},
		{[]string{"FOAR0001"}, true},
		{[]string{"err:XPTY0004"}, false},
		{[]string{"XPTY0004", "FOAR0001"}, true},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(err, tt.patterns), "%v", tt.patterns)
	}

	assert.False(t, Match(New(CodeInterrupted, Info{}, "stop"), []string{"*"}))
	assert.False(t, Match(New(CodeUndefinedVar, Info{}, "x"), []string{"*"}))
	assert.False(t, Match(errors.New("plain"), []string{"*"}))
}
