package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/models"
	testutil "github.com/opsdeck/opsdeck/internal/testing"
)

func TestAppendAndListMessages(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.AppendMessage("c1", models.ChatMessage{
		Role: models.RoleUser, Content: "hello", Timestamp: testutil.FixedTime,
	}))
	require.NoError(t, store.AppendMessage("c1", models.ChatMessage{
		Role: models.RoleAssistant, Content: "hi", Timestamp: testutil.FixedTime.Add(time.Second),
	}))
	require.NoError(t, store.AppendMessage("c2", models.ChatMessage{
		Role: models.RoleUser, Content: "other", Timestamp: testutil.FixedTime,
	}))

	msgs, err := store.Messages("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)
	require.True(t, msgs[0].Timestamp.Equal(testutil.FixedTime))
	require.Equal(t, models.RoleAssistant, msgs[1].Role)

	conversations, err := store.ListConversations(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c2", "c1"}, conversations)
}

func TestDeleteConversation(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage("c1", models.ChatMessage{
		Role: models.RoleUser, Content: "hello", Timestamp: testutil.FixedTime,
	}))
	require.NoError(t, store.AppendMessage("c1", models.ChatMessage{
		Role: models.RoleAssistant, Content: "hi", Timestamp: testutil.FixedTime.Add(time.Second),
	}))

	dropped, err := store.DeleteConversation(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, dropped)

	msgs, err := store.Messages("c1")
	require.NoError(t, err)
	require.Empty(t, msgs)

	dropped, err = store.DeleteConversation(ctx, "c1")
	require.NoError(t, err)
	require.Zero(t, dropped)

	_, err = store.DeleteConversation(ctx, "")
	require.Error(t, err)
}

func TestAppendMessageValidation(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	require.Error(t, store.AppendMessage("", models.ChatMessage{Role: models.RoleUser}))
	require.Error(t, store.AppendMessage("c1", models.ChatMessage{Role: "system"}))
}
