package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/opsdeck/opsdeck/internal/testing"
)

func TestSaveAndGetDraft(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	quiz := testutil.NewTestQuiz()

	require.NoError(t, store.SaveDraft(ctx, quiz))

	draft, err := store.GetDraft(ctx, quiz.Slug)
	require.NoError(t, err)
	require.Equal(t, quiz.Title, draft.Title)
	require.Len(t, draft.Quiz.Questions, 2)
	require.Equal(t, "district", draft.Quiz.Questions[0].MetrikaGoalPrefix)
	require.False(t, draft.UpdatedAt.IsZero())
}

func TestSaveDraftOverwrites(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	quiz := testutil.NewTestQuiz()

	require.NoError(t, store.SaveDraft(ctx, quiz))
	quiz.Title = "Новое название"
	quiz.Questions = quiz.Questions[:1]
	require.NoError(t, store.SaveDraft(ctx, quiz))

	draft, err := store.GetDraft(ctx, quiz.Slug)
	require.NoError(t, err)
	require.Equal(t, "Новое название", draft.Title)
	require.Len(t, draft.Quiz.Questions, 1)

	drafts, err := store.ListDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
}

func TestDeleteDraft(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	quiz := testutil.NewTestQuiz()

	require.NoError(t, store.SaveDraft(ctx, quiz))
	require.NoError(t, store.DeleteDraft(ctx, quiz.Slug))

	_, err := store.GetDraft(ctx, quiz.Slug)
	require.ErrorIs(t, err, ErrDraftNotFound)
	require.ErrorIs(t, store.DeleteDraft(ctx, quiz.Slug), ErrDraftNotFound)
}

func TestDraftRequiresSlug(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	quiz := testutil.NewTestQuiz()
	quiz.Slug = " "
	require.Error(t, store.SaveDraft(context.Background(), quiz))
}
