package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultKey is the fixed key the record list is stored under.
const DefaultKey = "taxhub_historico"

var (
	// ErrRecordNotFound indicates no record has the requested id.
	ErrRecordNotFound = errors.New("history record not found")

	// ErrCorruptStore indicates the stored blob is not a valid record list.
	ErrCorruptStore = errors.New("history store is corrupt")
)

// Backend is a key-value blob storage. Get reports whether the key exists.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store persists the ordered record list (newest first) as a single JSON blob.
// Every mutation loads the full list, changes it in memory and writes it back.
type Store struct {
	backend Backend
	key     string
	now     func() time.Time
	logger  *slog.Logger

	// mu serialises read-modify-write cycles of this process.
	mu     sync.Mutex
	lastID int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store on top of the given backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns every stored record. A missing key yields an empty list.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	blob, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if !ok || len(blob) == 0 {
		return []Record{}, nil
	}

	var records []Record
	if err := json.Unmarshal(blob, &records); err != nil {
		s.logger.ErrorContext(ctx, "history blob does not decode", "key", s.key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// SaveAll overwrites the stored list with records.
func (s *Store) SaveAll(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAll(ctx, records)
}

// SeedIfEmpty stores the records built by seed when the store holds nothing,
// and returns the stored list either way.
func (s *Store) SeedIfEmpty(ctx context.Context, seed func() []Record) ([]Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(records) > 0 {
		return records, false, nil
	}

	records = seed()
	if err := s.saveAll(ctx, records); err != nil {
		return nil, false, err
	}
	for _, rec := range records {
		if rec.ID > s.lastID {
			s.lastID = rec.ID
		}
	}
	return records, true, nil
}

func (s *Store) saveAll(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := s.backend.Put(ctx, s.key, blob); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// Append saves a new conversation in front of the list and returns its id.
func (s *Store) Append(ctx context.Context, agentID, agentName string, messages []Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	id := s.nextID(now, records)
	rec := Record{
		ID:        id,
		AgentID:   agentID,
		AgentName: agentName,
		Timestamp: FormatTimestamp(now),
		Messages:  append([]Message(nil), messages...),
		Preview:   buildPreview(messages),
	}

	updated := make([]Record, 0, len(records)+1)
	updated = append(updated, rec)
	updated = append(updated, records...)
	if err := s.saveAll(ctx, updated); err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "conversation saved", "id", id, "agent_id", agentID, "messages", len(messages))
	return id, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

// Remove deletes the record with the given id, keeping the others in order.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load(ctx)
	if err != nil {
		return err
	}

	kept := make([]Record, 0, len(records))
	found := false
	for _, rec := range records {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return ErrRecordNotFound
	}
	return s.saveAll(ctx, kept)
}

// Clear deletes the stored blob. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// nextID returns the save time in ms, bumped past every id seen so far.
func (s *Store) nextID(now time.Time, records []Record) int64 {
	id := now.UnixMilli()
	floor := s.lastID
	for _, rec := range records {
		if rec.ID > floor {
			floor = rec.ID
		}
	}
	if id <= floor {
		id = floor + 1
	}
	s.lastID = id
	return id
}
