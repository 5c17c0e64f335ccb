package nats

import (
	"testing"
	"time"

	"github.com/aquilax/treeboard/changefeed/feedtest"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestFeed(t *testing.T) {
	ns := runServer(t)
	f, err := Dial(ns.ClientURL())
	require.NoError(t, err)
	defer f.Close()
	feedtest.Run(t, f)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "treeboard.tree.abc", Subject("abc"))
}
