package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndListOperations(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordOperation(ctx, Operation{
		Kind: "vm.create", Subject: "web-1", OK: true, Message: "created at 10.128.0.10",
	}))
	require.NoError(t, store.RecordOperation(ctx, Operation{
		Kind: "deploy.functions", Subject: "acme/realty-leads", OK: false,
		Message: "batch 3 failed",
		Logs:    []string{"=== batch 3 (offset 10) ===", "build error"},
	}))

	ops, err := store.ListOperationsTail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, "vm.create", ops[0].Kind)
	require.True(t, ops[0].OK)
	require.Empty(t, ops[0].Logs)
	require.Equal(t, "deploy.functions", ops[1].Kind)
	require.False(t, ops[1].OK)
	require.Equal(t, []string{"=== batch 3 (offset 10) ===", "build error"}, ops[1].Logs)
	require.False(t, ops[1].Time.IsZero())
}

func TestListOperationsTailLimit(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordOperation(ctx, Operation{Kind: "sync", OK: true}))
	}
	ops, err := store.ListOperationsTail(ctx, 3)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	// Chronological order: ids increase.
	require.Less(t, ops[0].ID, ops[2].ID)
}

func TestRecordOperationRequiresKind(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	require.Error(t, store.RecordOperation(context.Background(), Operation{}))
}
