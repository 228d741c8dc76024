package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSlotStore keeps each save slot as a JSON file in a directory
type FileSlotStore struct {
	dir       string
	stateLock sync.RWMutex
}

// NewFileSlotStore creates a file-backed slot store rooted at dir
func NewFileSlotStore(dir string) (*FileSlotStore, error) {
	if dir == "" {
		return nil, errors.New("save directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	return &FileSlotStore{dir: dir}, nil
}

func (fs *FileSlotStore) slotPath(slot int) string {
	return filepath.Join(fs.dir, fmt.Sprintf("slot_%d.json", slot))
}

// PutSlot writes data to the slot file, replacing it atomically
func (fs *FileSlotStore) PutSlot(ctx context.Context, slot int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.stateLock.Lock()
	defer fs.stateLock.Unlock()

	path := fs.slotPath(slot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write save file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace save file: %w", err)
	}
	return nil
}

// GetSlot reads the slot file; a missing file reports false
func (fs *FileSlotStore) GetSlot(ctx context.Context, slot int) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	fs.stateLock.RLock()
	defer fs.stateLock.RUnlock()

	data, err := os.ReadFile(fs.slotPath(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read save file: %w", err)
	}
	return data, true, nil
}

// DeleteSlot removes the slot file; deleting an empty slot is not an error
func (fs *FileSlotStore) DeleteSlot(ctx context.Context, slot int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.stateLock.Lock()
	defer fs.stateLock.Unlock()

	if err := os.Remove(fs.slotPath(slot)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete save file: %w", err)
	}
	return nil
}

// MemorySlotStore keeps slots in memory
type MemorySlotStore struct {
	stateLock sync.RWMutex
	slots     map[int][]byte
}

// NewMemorySlotStore creates an empty in-memory slot store
func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{slots: make(map[int][]byte)}
}

// PutSlot stores a copy of data
func (ms *MemorySlotStore) PutSlot(_ context.Context, slot int, data []byte) error {
	ms.stateLock.Lock()
	defer ms.stateLock.Unlock()
	ms.slots[slot] = append([]byte(nil), data...)
	return nil
}

// GetSlot returns a copy of the stored bytes
func (ms *MemorySlotStore) GetSlot(_ context.Context, slot int) ([]byte, bool, error) {
	ms.stateLock.RLock()
	defer ms.stateLock.RUnlock()
	data, ok := ms.slots[slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// DeleteSlot drops the slot
func (ms *MemorySlotStore) DeleteSlot(_ context.Context, slot int) error {
	ms.stateLock.Lock()
	defer ms.stateLock.Unlock()
	delete(ms.slots, slot)
	return nil
}
