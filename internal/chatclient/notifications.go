package chatclient

import (
	"sync"

	"github.com/adi-253/skillswap/internal/models"
)

// Subscriber is the part of Connection the notification listener needs.
type Subscriber interface {
	OnMessage(fn func(models.MessagePayload)) func()
}

// NotificationListener raises a sticky unread signal for messages from other
// users that arrive while the chat page is not shown. It only sees messages
// for conversations its connection has joined.
type NotificationListener struct {
	userID string

	mu          sync.Mutex
	onChatPage  bool
	unread      bool
	unsubscribe func()
	onChange    func(unread bool)
}

// NewNotificationListener subscribes to conn for the lifetime of the session.
// onChange may be nil.
func NewNotificationListener(conn Subscriber, userID string, onChange func(unread bool)) *NotificationListener {
	n := &NotificationListener{userID: canonicalID(userID), onChange: onChange}
	n.unsubscribe = conn.OnMessage(n.handleMessage)
	return n
}

func (n *NotificationListener) handleMessage(msg models.MessagePayload) {
	n.mu.Lock()
	if n.onChatPage || msg.SenderID == n.userID || n.unread {
		n.mu.Unlock()
		return
	}
	n.unread = true
	n.mu.Unlock()
	n.emit(true)
}

// SetChatPage records whether the chat page is shown. Entering it clears the signal.
func (n *NotificationListener) SetChatPage(onChatPage bool) {
	n.mu.Lock()
	n.onChatPage = onChatPage
	cleared := onChatPage && n.unread
	if cleared {
		n.unread = false
	}
	n.mu.Unlock()
	if cleared {
		n.emit(false)
	}
}

// HasUnread reports the current signal.
func (n *NotificationListener) HasUnread() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread
}

// Stop unsubscribes from the connection.
func (n *NotificationListener) Stop() {
	n.unsubscribe()
}

func (n *NotificationListener) emit(unread bool) {
	if n.onChange != nil {
		n.onChange(unread)
	}
}
