package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	DefaultFileName = ".lotusgift-trades.json"
)

// Attempt is one run of the trade flow as it was recorded locally.
type Attempt struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Mode    string    `json:"mode"`
	State   string    `json:"state"`

	SrcChainID  int64  `json:"src_chain_id"`
	SrcToken    string `json:"src_token"`
	DestChainID int64  `json:"dest_chain_id"`
	DestToken   string `json:"dest_token"`
	AmountWei   string `json:"amount_wei"`
	User        string `json:"user,omitempty"`

	TradeID        string `json:"trade_id,omitempty"`
	ExpectedAmount string `json:"expected_amount,omitempty"`
	MinAmount      string `json:"min_amount,omitempty"`
	ApprovalTxHash string `json:"approval_tx_hash,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	Status         string `json:"status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Store keeps attempts in a JSON file.
type Store struct {
	filePath string
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

type fileFormat struct {
	Attempts map[string]*Attempt `json:"attempts"`
}

// Open loads the journal at filePath, or ~/.lotusgift-trades.json when empty.
// A missing file is an empty journal.
func Open(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{
		filePath: filePath,
		attempts: make(map[string]*Attempt),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var f fileFormat
	if err := sonic.ConfigStd.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal journal: %w", err)
	}
	if f.Attempts != nil {
		s.attempts = f.Attempts
	}
	return nil
}

// saveLocked writes the journal. Callers hold s.mu.
func (s *Store) saveLocked() error {
	data, err := sonic.ConfigStd.MarshalIndent(fileFormat{Attempts: s.attempts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Create assigns an id and timestamps and persists the attempt.
func (s *Store) Create(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, exists := s.attempts[a.ID]; exists {
		return fmt.Errorf("attempt '%s' already exists", a.ID)
	}

	now := time.Now().UTC()
	a.Created = now
	a.Updated = now

	stored := *a
	s.attempts[a.ID] = &stored
	return s.saveLocked()
}

// Update replaces a stored attempt.
func (s *Store) Update(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.attempts[a.ID]
	if !exists {
		return fmt.Errorf("attempt '%s' not found", a.ID)
	}

	a.Created = prev.Created
	a.Updated = time.Now().UTC()

	stored := *a
	s.attempts[a.ID] = &stored
	return s.saveLocked()
}

// Get returns a copy of the attempt.
func (s *Store) Get(id string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.attempts[id]
	if !exists {
		return nil, fmt.Errorf("attempt '%s' not found", id)
	}
	out := *a
	return &out, nil
}

// FindByTxHash looks an attempt up by its submitted transaction.
func (s *Store) FindByTxHash(txHash string) (*Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attempts {
		if a.TxHash != "" && strings.EqualFold(a.TxHash, txHash) {
			out := *a
			return &out, true
		}
	}
	return nil, false
}

// List returns all attempts, newest first.
func (s *Store) List() []*Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID > out[j].ID
		}
		return out[i].Created.After(out[j].Created)
	})
	return out
}

// Count returns the number of recorded attempts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

// Path is the journal file location.
func (s *Store) Path() string {
	return s.filePath
}
