package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/sinergia/internal/types"
	"go.uber.org/zap"
)

// DataLoader handles loading roster data from files
type DataLoader struct {
	basePath string
}

// NewDataLoader creates a new data loader
func NewDataLoader(basePath string) *DataLoader {
	return &DataLoader{
		basePath: basePath,
	}
}

// LoadCharacters loads character definitions from characters.json
func (dl *DataLoader) LoadCharacters() ([]types.Character, error) {
	path := filepath.Join(dl.basePath, "characters.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read characters file: %w", err)
	}

	var characters []types.Character
	if err := json.Unmarshal(data, &characters); err != nil {
		return nil, fmt.Errorf("failed to parse characters data: %w", err)
	}

	for i, c := range characters {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("character at index %d has no characterId", i)
		}
	}
	return characters, nil
}

// Roster indexes characters by id
type Roster map[string]types.Character

// NewRoster builds a roster from a character list
func NewRoster(characters []types.Character) Roster {
	r := make(Roster, len(characters))
	for _, c := range characters {
		r[c.ID] = c
	}
	return r
}

// TreeFor returns the tree id of characterID, honoring a narrativeTree override
func (r Roster) TreeFor(characterID, suffix string) string {
	if c, ok := r[characterID]; ok && c.NarrativeTree != "" {
		return c.NarrativeTree
	}
	if suffix == "" || suffix == DefaultTreeSuffix {
		return TreeID(characterID)
	}
	return characterID + suffix
}

// NewRandomSource returns a PCG generator. A zero seed draws the seed from crypto/rand.
func NewRandomSource(seed uint64) (*rand.Rand, error) {
	if seed == 0 {
		var buf [8]byte
		if _, err := crand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("failed to seed random source: %w", err)
		}
		seed = binary.LittleEndian.Uint64(buf[:])
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), nil
}

// ErrSchedulerStopped is returned when scheduling on a stopped scheduler
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Scheduler runs at most one delayed action at a time. Scheduling or
// cancelling bumps a generation counter so a timer that already fired
// against an older generation does nothing.
type Scheduler struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	stopped    bool
	logger     *zap.Logger
}

// NewScheduler creates an idle scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Schedule replaces any pending action with fn after delay. fn receives the
// generation it was scheduled under.
func (s *Scheduler) Schedule(delay time.Duration, fn func(generation uint64)) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrSchedulerStopped
	}
	s.cancelLocked()
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped || gen != s.generation {
			s.mu.Unlock()
			s.logger.Debug("Dropping stale scheduled action", zap.Uint64("generation", gen))
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn(gen)
	})
	return gen, nil
}

// Cancel drops any pending action
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.generation++
}

// Current reports whether generation is still the latest scheduled action
func (s *Scheduler) Current(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && generation == s.generation
}

// Pending reports whether an action is waiting to fire
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels the pending action and refuses new ones
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.generation++
	s.stopped = true
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
