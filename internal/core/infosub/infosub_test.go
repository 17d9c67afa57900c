package infosub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoSub_SendAndClose(t *testing.T) {
	var got []string
	s := New(SinkFunc(func(p json.RawMessage) error {
		got = append(got, string(p))
		return nil
	}))

	require.NoError(t, s.Send(json.RawMessage(`1`)))
	assert.False(t, s.Closed())

	s.Close()
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.Send(json.RawMessage(`2`)), ErrClosed)
	assert.Equal(t, []string{`1`}, got)
}

func TestNextSeq_Unique(t *testing.T) {
	a, b := New(nil), New(nil)
	assert.NotEqual(t, a.Seq(), b.Seq())
	assert.Greater(t, b.Seq(), a.Seq())

	assert.Equal(t, uint64(7), NewWithSeq(7, nil).Seq())
}
