package main

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/skillswap/internal/chatclient"
	"github.com/adi-253/skillswap/internal/models"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	conn, err := chatclient.NewConnection("http://127.0.0.1:1", uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return newModel(context.Background(), chatclient.NewAPI("http://127.0.0.1:1"), conn, uuid.NewString())
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func samplePreviews() []models.ChatPreview {
	last := "see you at 5"
	sentAt := time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC)
	return []models.ChatPreview{
		{ConversationID: uuid.NewString(), OtherUserName: "Tariq", LastMessage: &last, LastMessageTime: &sentAt, HasUnreadMessages: true},
		{ConversationID: uuid.NewString(), OtherUserName: "Ines"},
	}
}

func TestListPage(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, previewsLoadedMsg{previews: samplePreviews()})

	view := m.View()
	assert.Contains(t, view, "Tariq")
	assert.Contains(t, view, "see you at 5")
	assert.Contains(t, view, "No messages yet")
	assert.NotContains(t, view, "new messages")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)
}

func TestUnreadBadge(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, previewsLoadedMsg{previews: samplePreviews()})
	m = update(t, m, unreadMsg(true))
	assert.Contains(t, m.View(), "new messages")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, pageChat, m.page)
	require.NotNil(t, m.controller)
	assert.NotContains(t, m.View(), "new messages")
	assert.Contains(t, m.View(), "Tariq")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, pageList, m.page)
	assert.Nil(t, m.controller)
}

func TestStaleControllerEventsAreIgnored(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, previewsLoadedMsg{previews: samplePreviews()})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	stale := m.controller
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	next, cmd := m.Update(mountedMsg{controller: stale})
	assert.Nil(t, cmd)
	assert.Equal(t, pageList, next.(model).page)
}

func TestConnectionStateShown(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, stateMsg(chatclient.StateOffline))
	assert.Contains(t, m.View(), "offline")
}
