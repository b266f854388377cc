package telegram

import (
	"sync"
	"time"
)

const debounce = 1200 * time.Millisecond

// photoBatch collects the pages of one answer sheet: an album or photos sent
// one after another.
type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"
	TestID string

	mu     sync.Mutex
	urls   []string
	timer  *time.Timer
	closed bool
}
