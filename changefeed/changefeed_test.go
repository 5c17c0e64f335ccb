package changefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	e := NewEvent(TableComments, OpInsert, "oak")
	data, err := Encode(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"table":"tree_comments"`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e.Table, got.Table)
	assert.Equal(t, e.Op, got.Op)
	assert.Equal(t, e.TreeID, got.TreeID)
	assert.True(t, e.At.Equal(got.At))
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
