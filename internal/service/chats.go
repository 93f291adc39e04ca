package service

import (
	"sort"
	"sync"

	"github.com/Kerhoff/rollcall/internal/models"
)

// ChatBindings links each group to the one chat that receives its alerts
// and may act on its passes. Links made at runtime last until restart; the
// groups file provides the initial ones.
type ChatBindings struct {
	mu      sync.RWMutex
	byGroup map[string]int64
}

// NewChatBindings seeds the links from the groups' telegramChatID.
func NewChatBindings(groups []models.GroupConfig) *ChatBindings {
	c := &ChatBindings{byGroup: make(map[string]int64, len(groups))}
	for _, g := range groups {
		if g.TelegramChatID != 0 {
			c.byGroup[g.ID] = g.TelegramChatID
		}
	}
	return c
}

// Bind replaces the group's chat.
func (c *ChatBindings) Bind(groupID string, chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byGroup[groupID] = chatID
}

// ChatFor returns the chat linked to the group.
func (c *ChatBindings) ChatFor(groupID string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chatID, ok := c.byGroup[groupID]
	return chatID, ok
}

// GroupsFor lists the groups linked to chatID, sorted.
func (c *ChatBindings) GroupsFor(chatID int64) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, chat := range c.byGroup {
		if chat == chatID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
