package telegraph

import (
	"hash/fnv"
	"sync"
)

// ChatDirectory assigns int64 chat IDs to platforms whose conversation IDs
// are strings (Slack channel IDs). IDs are derived from a hash of the key,
// so the same channel maps to the same chat ID across restarts unless two
// keys collide within one process.
type ChatDirectory struct {
	mu    sync.Mutex
	byID  map[int64]string
	byKey map[string]int64
}

// NewChatDirectory creates an empty ChatDirectory.
func NewChatDirectory() *ChatDirectory {
	return &ChatDirectory{
		byID:  make(map[int64]string),
		byKey: make(map[string]int64),
	}
}

// ChatID returns the chat ID for key, assigning one on first use. The empty
// key maps to 0.
func (d *ChatDirectory) ChatID(key string) int64 {
	if key == "" {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byKey[key]; ok {
		return id
	}
	id := hashKey(key)
	for {
		if _, taken := d.byID[id]; !taken {
			break
		}
		id++
		if id <= 0 {
			id = 1
		}
	}
	d.byID[id] = key
	d.byKey[key] = id
	return id
}

// Key returns the platform key for a chat ID previously returned by ChatID.
func (d *ChatDirectory) Key(chatID int64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.byID[chatID]
	return key, ok
}

// Len returns the number of known chats.
func (d *ChatDirectory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byKey)
}

// hashKey maps key to a positive int64.
func hashKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	id := int64(h.Sum64() & (1<<63 - 1))
	if id == 0 {
		id = 1
	}
	return id
}
