package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aquilax/treeboard/changefeed/feedtest"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	f := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer f.Close()
	feedtest.Run(t, f)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	f, err := Dial("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	assert.NoError(t, f.Close())

	_, err = Dial("not a url")
	assert.Error(t, err)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "treeboard:tree:abc", Channel("abc"))
}
