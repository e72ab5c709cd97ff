package recovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagSetSticky(t *testing.T) {
	fs := &FlagSet{}
	assert.True(t, fs.Empty())

	fs.Set(FlagMalformedNumber)
	fs.Set(FlagMalformedNumber)
	fs.Set(FlagRepaired)

	assert.True(t, fs.Has(FlagMalformedNumber))
	assert.True(t, fs.Has(FlagRepaired))
	assert.False(t, fs.Has(FlagNoHeader))
	assert.False(t, fs.Empty())
}

func TestFlagSetReportOrder(t *testing.T) {
	fs := &FlagSet{}
	// set in reverse of declaration order; the report stays declaration
	// ordered regardless
	fs.Set(FlagRepaired)
	fs.Set(FlagBadXref)
	fs.Set(FlagNoHeader)

	require.Equal(t, []string{
		"file header missing or damaged",
		"cross-reference table damaged",
		"cross-reference rebuilt by scanning",
	}, fs.Report())
}

func TestFlagSetMerge(t *testing.T) {
	a := &FlagSet{}
	a.Set(FlagNoHeader)
	b := &FlagSet{}
	b.Set(FlagBadXref)

	a.Merge(b)
	assert.True(t, a.Has(FlagNoHeader))
	assert.True(t, a.Has(FlagBadXref))
	assert.False(t, b.Has(FlagNoHeader))
}

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	action := s.OnError(nil, errors.New("boom"), Location{Component: "scanner"})
	assert.Equal(t, ActionFail, action)
}

func TestLenientStrategyCollects(t *testing.T) {
	s := NewLenientStrategy()
	for i := 0; i < 3; i++ {
		action := s.OnError(nil, errors.New("boom"), Location{Component: "parser", ByteOffset: int64(i)})
		assert.Equal(t, ActionWarn, action)
	}
	require.Len(t, s.Errors, 3)
	assert.Contains(t, s.Errors[0].Error(), "parser")
}
