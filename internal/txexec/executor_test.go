package txexec

import (
	"context"
	"testing"
	"time"

	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/replication"
	"hierarchical-kvstore/internal/store"
	"hierarchical-kvstore/internal/txn"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testHost struct {
	st  *store.Store
	id  string
	log *logrus.Entry
}

func (h *testHost) Store() *store.Store   { return h.st }
func (h *testHost) NodeID() string        { return h.id }
func (h *testHost) Logger() *logrus.Entry { return h.log }

func newTestHost(t *testing.T, id string) *testHost {
	t.Helper()
	st, err := store.New(t.TempDir(), id, logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &testHost{st: st, id: id, log: logrus.NewEntry(logrus.New())}
}

func TestExecutorRejectsUpdateAtTier1(t *testing.T) {
	host := newTestHost(t, "B1")
	ex := New(host, 1, nil, nil, nil, nil)

	_, err := ex.Execute(context.Background(), txn.Transaction{
		Type:       txn.Update,
		Operations: []txn.Operation{{Write: &txn.WriteOp{Key: 1, Value: 1}}},
	})
	require.Error(t, err)
}

func TestExecutorRejectsWriteOpAtTier2RegardlessOfType(t *testing.T) {
	host := newTestHost(t, "C1")
	ex := New(host, 2, nil, nil, nil, nil)

	_, err := ex.Execute(context.Background(), txn.Transaction{
		Type:       txn.ReadOnly,
		TargetTier: 2,
		Operations: []txn.Operation{{Write: &txn.WriteOp{Key: 1, Value: 1}}},
	})
	require.Error(t, err)
}

func TestExecutorMixedUpdateAtCoreAppliesThenReads(t *testing.T) {
	host := newTestHost(t, "A1")
	core := replication.NewCoreRole(host, nil)
	ex := New(host, 0, core, nil, nil, nil)

	resp, err := ex.Execute(context.Background(), txn.Transaction{
		Type: txn.Update,
		Operations: []txn.Operation{
			{Write: &txn.WriteOp{Key: 5, Value: 100}},
			{Read: &txn.ReadOp{Key: 5}},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	require.Equal(t, 100, resp.Results[0].Value)
}

func TestExecutorReadOnlyEqualTierResolvesLocally(t *testing.T) {
	host := newTestHost(t, "B1")
	_, err := host.Store().Update(1, 11, 1)
	require.NoError(t, err)

	ex := New(host, 1, nil, nil, nil, nil)
	resp, err := ex.Execute(context.Background(), txn.Transaction{
		Type:       txn.ReadOnly,
		TargetTier: 1,
		Operations: []txn.Operation{{Read: &txn.ReadOp{Key: 1}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestExecutorReadOnlyBelowTierIsRejected(t *testing.T) {
	host := newTestHost(t, "C1")
	ex := New(host, 2, nil, nil, nil, nil)

	_, err := ex.Execute(context.Background(), txn.Transaction{
		Type:       txn.ReadOnly,
		TargetTier: 0,
		Operations: []txn.Operation{{Read: &txn.ReadOp{Key: 1}}},
	})
	require.Error(t, err)
}

func TestExecutorReadOnlyAboveTierWithNoUpstreamIsUnavailable(t *testing.T) {
	host := newTestHost(t, "B1")
	ex := New(host, 1, nil, nil, nil, nil)

	_, err := ex.Execute(context.Background(), txn.Transaction{
		Type:       txn.ReadOnly,
		TargetTier: 2,
		Operations: []txn.Operation{{Read: &txn.ReadOp{Key: 1}}},
	})
	require.Error(t, err)
}

func TestExecutorReadOnlyFallsBackToLocalWhenRoutedBackupIsUnreachable(t *testing.T) {
	host := newTestHost(t, "B1")
	_, err := host.Store().Update(1, 11, 1)
	require.NoError(t, err)

	unreachable := peer.NewHandle("B2", "http://127.0.0.1:0", 50*time.Millisecond, nil)
	router := replication.NewReadRouter([]*peer.Handle{unreachable}, 10)
	ex := New(host, 1, nil, nil, nil, router)

	resp, err := ex.Execute(context.Background(), txn.Transaction{
		Type:       txn.ReadOnly,
		TargetTier: 1,
		Operations: []txn.Operation{{Read: &txn.ReadOp{Key: 1}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1, "must fall back to the local store when the routed backup can't be reached")
	require.Equal(t, 11, resp.Results[0].Value)
}
