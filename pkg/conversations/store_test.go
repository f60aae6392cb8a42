package conversations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/playground/pkg/db"
	"github.com/jingkaihe/playground/pkg/db/migrations"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "ai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.NewRegistry(conn, migrations.All()).Converge(ctx))
	return NewStore(conn), ctx
}

func TestStore_UsageScenario(t *testing.T) {
	store, ctx := newTestStore(t)

	id, err := store.CreateConversation(ctx, "hello", "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	listings, err := store.ListConversations(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "hello", listings[0].Title)
	assert.Equal(t, int64(0), listings[0].Usage)
	assert.False(t, listings[0].LastUpdate.IsZero())

	require.NoError(t, store.AppendUserMessage(ctx, id, "hello"))
	require.NoError(t, store.AppendAssistantMessage(ctx, id, convtypes.Reply{
		Role:             convtypes.RoleAssistant,
		Content:          "Hi there!",
		PromptTokens:     5,
		CompletionTokens: 7,
	}))

	listings, err = store.ListConversations(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(12), listings[0].Usage)
}

func TestStore_ListConversations_ScopedToOwner(t *testing.T) {
	store, ctx := newTestStore(t)

	mine, err := store.CreateConversation(ctx, "mine", "k1")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "theirs", "k2")
	require.NoError(t, err)

	listings, err := store.ListConversations(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, mine, listings[0].ID)

	listings, err = store.ListConversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, listings)

	_, err = store.GetConversation(ctx, mine, "k2")
	assert.ErrorIs(t, err, ErrNotFound)

	conv, err := store.GetConversation(ctx, mine, "k1")
	require.NoError(t, err)
	assert.Equal(t, "mine", conv.Title)
	assert.Equal(t, "k1", conv.OwnerKey)
	assert.Equal(t, int64(0), conv.Topic)
}

func TestStore_ListConversations_OrderedByLastActivity(t *testing.T) {
	store, ctx := newTestStore(t)

	first, err := store.CreateConversation(ctx, "first", "k1")
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, "second", "k1")
	require.NoError(t, err)

	// push the first conversation's activity past the second's creation
	_, err = store.db.Exec("UPDATE conversation SET updateat = '2020-01-01 00:00:00'")
	require.NoError(t, err)
	_, err = store.db.Exec(`INSERT INTO message (conversation_id, role, content, prompt_tokens, completion_tokens, updateat)
		VALUES (?, 'user', 'bump', 0, 0, '2021-01-01 00:00:00')`, first)
	require.NoError(t, err)

	listings, err := store.ListConversations(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, second, listings[0].ID)
	assert.Equal(t, first, listings[1].ID)
	assert.Equal(t, 2021, listings[1].LastUpdate.Year())
}

func TestStore_MessageRoundTrip(t *testing.T) {
	store, ctx := newTestStore(t)

	id, err := store.CreateConversation(ctx, `it's "quoted"`, "k1")
	require.NoError(t, err)

	content := "Robert'); DROP TABLE message;-- \"double\" and 'single' \\n 中文"
	require.NoError(t, store.AppendUserMessage(ctx, id, "  "+content+"\n"))
	require.NoError(t, store.AppendAssistantMessage(ctx, id, convtypes.Reply{
		Role:             convtypes.RoleAssistant,
		Content:          "reply",
		PromptTokens:     1,
		CompletionTokens: 2,
	}))

	messages, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, convtypes.RoleUser, messages[0].Role)
	assert.Equal(t, content, messages[0].Content)
	assert.Equal(t, int64(0), messages[0].TotalTokens())

	assert.Equal(t, convtypes.RoleAssistant, messages[1].Role)
	assert.Equal(t, "reply", messages[1].Content)
	assert.Equal(t, int64(3), messages[1].TotalTokens())
	assert.Less(t, messages[0].ID, messages[1].ID)

	conv, err := store.GetConversation(ctx, id, "k1")
	require.NoError(t, err)
	assert.Equal(t, `it's "quoted"`, conv.Title)
}

func TestStore_ListMessages_UnknownRole(t *testing.T) {
	store, ctx := newTestStore(t)

	id, err := store.CreateConversation(ctx, "t", "k1")
	require.NoError(t, err)
	_, err = store.db.Exec(`INSERT INTO message (conversation_id, role, content, prompt_tokens, completion_tokens)
		VALUES (?, 'narrator', 'once upon a time', 0, 0)`, id)
	require.NoError(t, err)

	_, err = store.ListMessages(ctx, id)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, convtypes.ErrInvalidRole)
}

func TestStore_AppendErrors(t *testing.T) {
	store, ctx := newTestStore(t)

	t.Run("unknown conversation", func(t *testing.T) {
		err := store.AppendUserMessage(ctx, 999, "hello")
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "append user message", storeErr.Op)
	})

	id, err := store.CreateConversation(ctx, "t", "k1")
	require.NoError(t, err)

	t.Run("invalid role", func(t *testing.T) {
		err := store.AppendAssistantMessage(ctx, id, convtypes.Reply{Role: "tool", Content: "x"})
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.ErrorIs(t, err, convtypes.ErrInvalidRole)
	})

	t.Run("negative tokens", func(t *testing.T) {
		err := store.AppendAssistantMessage(ctx, id, convtypes.Reply{
			Role:         convtypes.RoleAssistant,
			Content:      "x",
			PromptTokens: -1,
		})
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
	})

	messages, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_ListUsage(t *testing.T) {
	store, ctx := newTestStore(t)

	mine, err := store.CreateConversation(ctx, "mine", "k1")
	require.NoError(t, err)
	require.NoError(t, store.AppendUserMessage(ctx, mine, "hello"))
	require.NoError(t, store.AppendAssistantMessage(ctx, mine, convtypes.Reply{
		Role:             convtypes.RoleAssistant,
		Content:          "Hi there!",
		PromptTokens:     5,
		CompletionTokens: 7,
	}))

	theirs, err := store.CreateConversation(ctx, "theirs", "k2")
	require.NoError(t, err)
	require.NoError(t, store.AppendAssistantMessage(ctx, theirs, convtypes.Reply{
		Role:             convtypes.RoleAssistant,
		Content:          "x",
		PromptTokens:     100,
		CompletionTokens: 100,
	}))

	records, err := store.ListUsage(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mine, records[0].ConversationID)
	assert.Equal(t, int64(5), records[0].PromptTokens)
	assert.Equal(t, int64(7), records[0].CompletionTokens)
	assert.False(t, records[0].At.IsZero())

	records, err = store.ListUsage(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
}
