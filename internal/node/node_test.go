package node_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"hierarchical-kvstore/internal/api"
	"hierarchical-kvstore/internal/node"
	"hierarchical-kvstore/internal/txn"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// serveNode wires n's RPC handlers onto a real httptest server and
// returns its address ("http://127.0.0.1:port").
func serveNode(t *testing.T, n *node.Node) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api.NewHandler(n).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// TestEagerReplicationAcrossTwoCorePeers exercises §4.2 end to end over
// real HTTP: a write applied at A1 must be visible at A2 once A2's
// address is known to A1's core role.
func TestEagerReplicationAcrossTwoCorePeers(t *testing.T) {
	// A2 is built and served first so A1 can be configured with its real
	// ephemeral address.
	a2, err := node.New(node.Config{NodeID: "A2", Tier: 0, DataDir: t.TempDir(), FanoutTimeout: time.Second}, quietLogger())
	require.NoError(t, err)
	a2Addr := serveNode(t, a2)

	a1, err := node.New(node.Config{
		NodeID:        "A1",
		Tier:          0,
		DataDir:       t.TempDir(),
		FanoutTimeout: time.Second,
		CorePeers:     []node.PeerSpec{{ID: "A2", Addr: a2Addr}},
	}, quietLogger())
	require.NoError(t, err)
	serveNode(t, a1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := a1.Executor().Execute(ctx, txn.Transaction{
		Type: txn.Update,
		Operations: []txn.Operation{
			{Write: &txn.WriteOp{Key: 7, Value: 77}},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	item, ok := a2.Store().Get(7)
	require.True(t, ok, "A2 must have received the eagerly propagated write")
	require.Equal(t, 77, item.Value)
}

// TestWriteRejectedAtTier1 exercises §8 invariant 3: a write submitted
// to a tier-1 node is rejected and never mutates the store.
func TestWriteRejectedAtTier1(t *testing.T) {
	b1, err := node.New(node.Config{NodeID: "B1", Tier: 1, Primary: true, DataDir: t.TempDir()}, quietLogger())
	require.NoError(t, err)

	resp, err := b1.Executor().Execute(context.Background(), txn.Transaction{
		Type: txn.Update,
		Operations: []txn.Operation{
			{Write: &txn.WriteOp{Key: 1, Value: 1}},
		},
	})
	require.Error(t, err)
	require.False(t, resp.Success)

	_, ok := b1.Store().Get(1)
	require.False(t, ok)
}

// TestCountTriggeredSyncToTier1Primary exercises §8 invariant 5: after
// ten successful core writes at the origin, the count trigger delivers
// all ten items to the tier-1 primary's store.
func TestCountTriggeredSyncToTier1Primary(t *testing.T) {
	b1, err := node.New(node.Config{NodeID: "B1", Tier: 1, Primary: true, DataDir: t.TempDir(), FanoutTimeout: time.Second}, quietLogger())
	require.NoError(t, err)
	b1Addr := serveNode(t, b1)

	a1, err := node.New(node.Config{
		NodeID:         "A1",
		Tier:           0,
		DataDir:        t.TempDir(),
		Origin:         true,
		Downstream:     b1Addr,
		CountThreshold: 10,
		FanoutTimeout:  time.Second,
	}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a1.Start(ctx)

	for i := 0; i < 10; i++ {
		_, err := a1.Executor().Execute(ctx, txn.Transaction{
			Type:       txn.Update,
			Operations: []txn.Operation{{Write: &txn.WriteOp{Key: i, Value: 100}}},
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		for i := 0; i < 10; i++ {
			if _, ok := b1.Store().Get(i); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond, "tier-1 primary must receive all 10 items after the count trigger fires")
}
