package runner

import (
	"sync"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
)

// MaxSnapshotText is the number of characters of a message kept per chat.
// Messages sharing this prefix compare equal.
const MaxSnapshotText = 250

// ChatSnapshot is the last observed state of a chat.
type ChatSnapshot struct {
	ChatID   int64
	LastText string
	ChatWith string
}

// OrderSnapshot is the last observed state of an order.
type OrderSnapshot struct {
	OrderID string
	Status  funpay.OrderStatus
}

// Store keeps the last observed chats and orders. Entries are never evicted.
type Store struct {
	mu     sync.RWMutex
	chats  map[int64]ChatSnapshot
	orders map[string]OrderSnapshot
}

func NewStore() *Store {
	return &Store{
		chats:  make(map[int64]ChatSnapshot),
		orders: make(map[string]OrderSnapshot),
	}
}

func (s *Store) Chat(chatID int64) (ChatSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.chats[chatID]
	return snap, ok
}

// PutChat stores the snapshot with its text truncated to MaxSnapshotText.
func (s *Store) PutChat(chatID int64, snap ChatSnapshot) {
	snap.ChatID = chatID
	snap.LastText = Truncate(snap.LastText)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = snap
}

func (s *Store) Order(orderID string) (OrderSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.orders[orderID]
	return snap, ok
}

func (s *Store) PutOrder(orderID string, snap OrderSnapshot) {
	snap.OrderID = orderID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID] = snap
}

// Len returns the number of tracked chats and orders.
func (s *Store) Len() (chats, orders int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats), len(s.orders)
}

// Truncate cuts text to MaxSnapshotText characters.
func Truncate(text string) string {
	if len(text) <= MaxSnapshotText {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxSnapshotText {
		return text
	}
	return string(runes[:MaxSnapshotText])
}
