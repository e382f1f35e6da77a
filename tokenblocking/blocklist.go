package tokenblocking

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// IsBlocking reports whether any entry in blocklist blocks token.
func IsBlocking(blocklist interfaces.Blocklist, token interfaces.TokenIdentifier) (bool, error) {
	entries, err := blocklist.AllEntriesMatching(token)
	if err != nil {
		return false, fmt.Errorf("could not query blocklist: %w", err)
	}
	return len(entries) > 0, nil
}

// CheckToken returns interfaces.ErrTokenBlocked if token is blocked.
func CheckToken(blocklist interfaces.Blocklist, token interfaces.TokenIdentifier) error {
	blocked, err := IsBlocking(blocklist, token)
	if err != nil {
		return err
	}
	if blocked {
		return interfaces.ErrTokenBlocked
	}
	return nil
}

// MemoryBlocklist keeps entries in memory. Ids start at 1.
type MemoryBlocklist struct {
	mu      sync.RWMutex
	entries map[int64]interfaces.BlocklistEntry
	nextID  int64
}

// NewMemoryBlocklist creates an empty blocklist.
func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{
		entries: make(map[int64]interfaces.BlocklistEntry),
		nextID:  1,
	}
}

func (b *MemoryBlocklist) Size() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}

func (b *MemoryBlocklist) AllEntries() ([]interfaces.BlocklistEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collect(func(interfaces.BlocklistEntry) bool { return true }), nil
}

func (b *MemoryBlocklist) AllEntriesMatching(token interfaces.TokenIdentifier) ([]interfaces.BlocklistEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collect(func(e interfaces.BlocklistEntry) bool { return e.Blocks(token) }), nil
}

func (b *MemoryBlocklist) EntryByID(id int64) (interfaces.BlocklistEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[id]
	if !ok {
		return interfaces.BlocklistEntry{}, interfaces.ErrBlocklistEntryNotFound
	}
	return entry, nil
}

func (b *MemoryBlocklist) Add(target interfaces.TokenIdentifier, metadata interfaces.BlocklistEntryMetadata) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.entries[id] = interfaces.BlocklistEntry{ID: id, Target: target, Metadata: metadata}
	return id, nil
}

func (b *MemoryBlocklist) RemoveByID(id int64) (interfaces.BlocklistEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[id]
	if !ok {
		return interfaces.BlocklistEntry{}, interfaces.ErrBlocklistEntryNotFound
	}
	delete(b.entries, id)
	return entry, nil
}

func (b *MemoryBlocklist) collect(match func(interfaces.BlocklistEntry) bool) []interfaces.BlocklistEntry {
	result := make([]interfaces.BlocklistEntry, 0, len(b.entries))
	for _, entry := range b.entries {
		if match(entry) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
