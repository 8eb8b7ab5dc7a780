package state

import (
	"fmt"
	"sort"
	"time"
)

// conversationList keeps conversations ordered by UpdatedAt, newest first.
type conversationList struct {
	items    []Conversation
	activeID string
	now      func() time.Time
	newID    func(prefix string) string
}

func (l *conversationList) sort() {
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].UpdatedAt.After(l.items[j].UpdatedAt)
	})
}

func (l *conversationList) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range l.items {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (l *conversationList) create(name string) string {
	if name == "" {
		name = fmt.Sprintf("Chat %d", len(l.items)+1)
	}
	now := l.now()
	c := Conversation{
		ID:        l.newID("conv"),
		Name:      name,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.items = append([]Conversation{c}, l.items...)
	l.sort()
	l.activeID = c.ID
	return c.ID
}

// selectID activates id. An empty or unknown id falls back to the most
// recently updated conversation, and an empty list gets a fresh one. The
// returned bool reports whether id itself was selected.
func (l *conversationList) selectID(id string) (string, bool) {
	if l.indexOf(id) >= 0 {
		l.activeID = id
		return id, true
	}
	l.ensureActive(firstConversationName)
	return l.activeID, false
}

func (l *conversationList) remove(id string) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	if l.activeID == id {
		l.activeID = ""
	}
	l.ensureActive("")
	return true
}

func (l *conversationList) rename(id, name string) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.items[i].Name = name
	l.items[i].UpdatedAt = l.now()
	l.sort()
	return true
}

// replaceMessages swaps the whole message slice. Concurrent callers holding
// stale bases overwrite each other; the last call wins.
func (l *conversationList) replaceMessages(id string, msgs []Message) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	out := append([]Message(nil), msgs...)
	if out == nil {
		out = []Message{}
	}
	l.items[i].Messages = out
	l.items[i].UpdatedAt = l.now()
	l.sort()
	return true
}

// ensureActive restores "at least one conversation, exactly one active".
func (l *conversationList) ensureActive(name string) {
	if l.indexOf(l.activeID) >= 0 {
		return
	}
	if len(l.items) == 0 {
		l.create(name)
		return
	}
	l.sort()
	l.activeID = l.items[0].ID
}

func (l *conversationList) get(id string) (Conversation, bool) {
	i := l.indexOf(id)
	if i < 0 {
		return Conversation{}, false
	}
	return l.items[i].clone(), true
}

func (l *conversationList) snapshot() []Conversation {
	out := make([]Conversation, len(l.items))
	for i, c := range l.items {
		out[i] = c.clone()
	}
	return out
}

// CreateConversation starts an empty conversation, makes it active and shows
// the chat view. An empty name gets a numbered default.
func (a *App) CreateConversation(name string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.convs.create(name)
	a.view = ViewChat
	a.commit()
	return id
}

// SelectConversation activates id and returns the conversation that ended up
// active, which differs from id when id is empty or unknown.
func (a *App) SelectConversation(id string) Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()

	active, _ := a.convs.selectID(id)
	a.view = ViewChat
	a.commit()
	c, _ := a.convs.get(active)
	return c
}

// DeleteConversation removes id. Deleting the active conversation moves the
// pointer to the most recent survivor, or to a fresh conversation when none
// remain.
func (a *App) DeleteConversation(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.convs.remove(id) {
		return fmt.Errorf("conversation %q: %w", id, ErrNotFound)
	}
	a.view = ViewChat
	a.commit()
	return nil
}

func (a *App) RenameConversation(id, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.convs.rename(id, name) {
		return fmt.Errorf("conversation %q: %w", id, ErrNotFound)
	}
	a.commit()
	return nil
}

// ReplaceMessages overwrites the message list of id.
func (a *App) ReplaceMessages(id string, msgs []Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.convs.replaceMessages(id, msgs) {
		return fmt.Errorf("conversation %q: %w", id, ErrNotFound)
	}
	a.commit()
	return nil
}

// Conversations returns a copy of all conversations, newest first.
func (a *App) Conversations() []Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convs.snapshot()
}

func (a *App) Conversation(id string) (Conversation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convs.get(id)
}

func (a *App) ActiveConversation() Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, _ := a.convs.get(a.convs.activeID)
	return c
}
