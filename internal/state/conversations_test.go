package state

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireActiveResolves(t *testing.T, app *App) {
	t.Helper()
	snap := app.Snapshot()
	require.NotEmpty(t, snap.Conversations)
	found := 0
	for _, c := range snap.Conversations {
		if c.ID == snap.ActiveConversationID {
			found++
		}
	}
	require.Equal(t, 1, found, "active id %q must resolve", snap.ActiveConversationID)
}

func TestOpenCreatesFirstConversation(t *testing.T) {
	app := newHarness().open(t)

	convs := app.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, firstConversationName, convs[0].Name)
	require.Empty(t, convs[0].Messages)
	require.Equal(t, convs[0].ID, app.ActiveConversation().ID)
}

func TestConversationNonEmptinessUnderRandomOps(t *testing.T) {
	app := newHarness().open(t)
	rng := rand.New(rand.NewSource(11))

	for step := 0; step < 200; step++ {
		convs := app.Conversations()
		if rng.Intn(2) == 0 {
			app.CreateConversation("")
		} else {
			victim := convs[rng.Intn(len(convs))].ID
			require.NoError(t, app.DeleteConversation(victim))
			_, ok := app.Conversation(victim)
			require.False(t, ok)
		}
		requireActiveResolves(t, app)
	}
}

func TestCreateConversationBecomesActiveAtHead(t *testing.T) {
	app := newHarness().open(t)
	app.SetView(ViewSettings)

	id := app.CreateConversation("")

	convs := app.Conversations()
	require.Equal(t, id, convs[0].ID)
	require.Equal(t, "Chat 2", convs[0].Name)
	require.Equal(t, id, app.ActiveConversation().ID)
	require.Equal(t, ViewChat, app.View())

	named := app.CreateConversation("Fiqh questions")
	c, ok := app.Conversation(named)
	require.True(t, ok)
	require.Equal(t, "Fiqh questions", c.Name)
}

func TestDeleteLastConversationCreatesReplacement(t *testing.T) {
	app := newHarness().open(t)
	c1 := app.ActiveConversation()

	require.NoError(t, app.DeleteConversation(c1.ID))

	convs := app.Conversations()
	require.Len(t, convs, 1)
	c2 := convs[0]
	require.NotEqual(t, c1.ID, c2.ID)
	require.Empty(t, c2.Messages)
	require.Equal(t, c2.ID, app.ActiveConversation().ID)
}

func TestDeleteActivePicksMostRecentlyUpdated(t *testing.T) {
	app := newHarness().open(t)
	first := app.ActiveConversation().ID
	second := app.CreateConversation("second")
	third := app.CreateConversation("third")

	require.NoError(t, app.RenameConversation(first, "touched"))
	require.NoError(t, app.DeleteConversation(third))

	require.Equal(t, first, app.ActiveConversation().ID)
	ids := []string{}
	for _, c := range app.Conversations() {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{first, second}, ids)
}

func TestDeleteInactiveKeepsActive(t *testing.T) {
	app := newHarness().open(t)
	first := app.ActiveConversation().ID
	second := app.CreateConversation("")

	require.NoError(t, app.DeleteConversation(first))
	require.Equal(t, second, app.ActiveConversation().ID)
	require.True(t, errors.Is(app.DeleteConversation(first), ErrNotFound))
}

func TestSelectConversationFallbacks(t *testing.T) {
	app := newHarness().open(t)
	first := app.ActiveConversation().ID
	second := app.CreateConversation("")

	app.SetView(ViewImage)
	got := app.SelectConversation(first)
	require.Equal(t, first, got.ID)
	require.Equal(t, ViewChat, app.View())

	require.NoError(t, app.RenameConversation(second, "newest"))
	got = app.SelectConversation("")
	require.Equal(t, first, got.ID, "empty id keeps a resolvable active conversation")

	got = app.SelectConversation("does-not-exist")
	require.Equal(t, first, got.ID)
	requireActiveResolves(t, app)
}

func TestSelectOnEmptyListCreates(t *testing.T) {
	l := conversationList{now: newFakeClock().Now, newID: (&seqIDs{}).Next}
	id, ok := l.selectID("")
	require.False(t, ok)
	require.Len(t, l.items, 1)
	require.Equal(t, id, l.activeID)
	require.Equal(t, firstConversationName, l.items[0].Name)
}

func TestSelectUnknownFallsBackToMostRecent(t *testing.T) {
	l := conversationList{now: newFakeClock().Now, newID: (&seqIDs{}).Next}
	older := l.create("older")
	newer := l.create("newer")
	l.activeID = ""

	id, ok := l.selectID("ghost")
	require.False(t, ok)
	require.Equal(t, newer, id)

	l.rename(older, "older, renamed")
	l.activeID = ""
	id, _ = l.selectID("")
	require.Equal(t, older, id)
}

func TestRenameAndReplaceRefreshUpdatedAt(t *testing.T) {
	app := newHarness().open(t)
	id := app.ActiveConversation().ID
	before, _ := app.Conversation(id)

	require.NoError(t, app.RenameConversation(id, "renamed"))
	renamed, _ := app.Conversation(id)
	require.Equal(t, "renamed", renamed.Name)
	require.True(t, renamed.UpdatedAt.After(before.UpdatedAt))

	require.NoError(t, app.ReplaceMessages(id, []Message{{ID: "m1", Text: "salam", Sender: SenderUser}}))
	replaced, _ := app.Conversation(id)
	require.Len(t, replaced.Messages, 1)
	require.True(t, replaced.UpdatedAt.After(renamed.UpdatedAt))
	require.Equal(t, before.CreatedAt, replaced.CreatedAt)
}

func TestReplaceMessagesLastWriteWins(t *testing.T) {
	app := newHarness().open(t)
	id := app.ActiveConversation().ID

	baseA := app.ActiveConversation().Messages
	baseB := app.ActiveConversation().Messages

	writeA := append(append([]Message{}, baseA...),
		Message{ID: "a-user", Text: "question A", Sender: SenderUser},
		Message{ID: "a-ai", Text: "answer A", Sender: SenderAI})
	writeB := append(append([]Message{}, baseB...),
		Message{ID: "b-user", Text: "question B", Sender: SenderUser},
		Message{ID: "b-ai", Text: "answer B", Sender: SenderAI})

	require.NoError(t, app.ReplaceMessages(id, writeA))
	require.NoError(t, app.ReplaceMessages(id, writeB))

	final, _ := app.Conversation(id)
	require.Equal(t, writeB, final.Messages)
}

func TestReplaceMessagesCopiesInput(t *testing.T) {
	app := newHarness().open(t)
	id := app.ActiveConversation().ID
	msgs := []Message{{ID: "m1", Text: "one", Sender: SenderUser}}

	require.NoError(t, app.ReplaceMessages(id, msgs))
	msgs[0].Text = "mutated"

	c, _ := app.Conversation(id)
	require.Equal(t, "one", c.Messages[0].Text)
	require.True(t, errors.Is(app.ReplaceMessages("nope", nil), ErrNotFound))
}
