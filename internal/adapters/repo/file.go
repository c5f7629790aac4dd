package repo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"tweet-pruner/internal/domain"
)

const (
	journalFileName = "decisions.jsonl"
	stateFileName   = "state.json"
)

// File хранит журнал в JSONL и состояние в JSON внутри каталога пространства.
// Каждая запись журнала синхронизируется на диск до возврата из Append.
type File struct {
	mu        sync.Mutex
	dir       string
	journal   *os.File
	offset    int64
	decisions []domain.Decision
	index     map[string]int
}

var (
	_ domain.Ledger         = (*File)(nil)
	_ domain.DecisionReader = (*File)(nil)
)

// OpenFile открывает (или создаёт) журнал в baseDir/namespace.
// Оборванная последняя строка, оставшаяся после сбоя, отбрасывается.
func OpenFile(baseDir, namespace string) (*File, error) {
	dir := filepath.Join(baseDir, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, journalFileName), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	store := &File{dir: dir, journal: f, index: make(map[string]int)}
	if err := store.load(); err != nil {
		f.Close()
		return nil, err
	}
	return store, nil
}

func (s *File) load() error {
	torn, err := s.scanLocked()
	if err != nil {
		return err
	}
	if torn {
		// строка без перевода строки: запись оборвалась на середине
		if err := s.journal.Truncate(s.offset); err != nil {
			return fmt.Errorf("truncate torn journal line: %w", err)
		}
	}
	return nil
}

// scanLocked дочитывает полные строки журнала начиная с s.offset.
// Возвращает true, если в конце осталась неполная строка.
func (s *File) scanLocked() (bool, error) {
	info, err := s.journal.Stat()
	if err != nil {
		return false, fmt.Errorf("stat journal: %w", err)
	}
	if info.Size() <= s.offset {
		return false, nil
	}
	reader := bufio.NewReader(io.NewSectionReader(s.journal, s.offset, info.Size()-s.offset))
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return len(bytes.TrimSpace(line)) > 0, nil
		}
		if err != nil {
			return false, fmt.Errorf("read journal: %w", err)
		}
		s.offset += int64(len(line))
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		d, err := decodeDecision(trimmed)
		if err != nil {
			return false, fmt.Errorf("journal offset %d: %w", s.offset, err)
		}
		if _, dup := s.index[d.ItemID]; dup {
			return false, fmt.Errorf("journal offset %d: %w: %s", s.offset, domain.ErrDuplicateDecision, d.ItemID)
		}
		s.index[d.ItemID] = len(s.decisions)
		s.decisions = append(s.decisions, d)
	}
}

// refreshLocked подхватывает строки, дописанные другим процессом.
func (s *File) refreshLocked() error {
	_, err := s.scanLocked()
	return err
}

// Close закрывает файл журнала.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.Close()
}

// Has реализует domain.Journal.
func (s *File) Has(_ context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return false, err
	}
	_, ok := s.index[itemID]
	return ok, nil
}

// Append реализует domain.Journal.
func (s *File) Append(_ context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(d)
}

// appendLocked дописывает строку в конец файла и перечитывает хвост в индекс.
func (s *File) appendLocked(d domain.Decision) error {
	if err := s.refreshLocked(); err != nil {
		return journalWriteError("refresh journal", err)
	}
	if _, ok := s.index[d.ItemID]; ok {
		return domain.ErrDuplicateDecision
	}
	line, err := json.Marshal(d)
	if err != nil {
		return journalWriteError("encode decision", err)
	}
	line = append(line, '\n')
	if _, err := s.journal.Write(line); err != nil {
		return journalWriteError("write journal", err)
	}
	if err := s.journal.Sync(); err != nil {
		return journalWriteError("sync journal", err)
	}
	if err := s.refreshLocked(); err != nil {
		return journalWriteError("refresh journal", err)
	}
	return nil
}

// Commit дописывает решение, затем сохраняет состояние.
func (s *File) Commit(_ context.Context, d domain.Decision, state domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(d); err != nil {
		return err
	}
	return s.saveStateLocked(state)
}

// LoadState реализует domain.StateStore.
func (s *File) LoadState(_ context.Context) (domain.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(s.dir, stateFileName))
	if errors.Is(err, os.ErrNotExist) {
		return domain.RunState{}, nil
	}
	if err != nil {
		return domain.RunState{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState(data)
}

// SaveState реализует domain.StateStore.
func (s *File) SaveState(_ context.Context, state domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveStateLocked(state)
}

func (s *File) saveStateLocked(state domain.RunState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return journalWriteError("encode state", err)
	}
	tmp, err := os.CreateTemp(s.dir, stateFileName+".*.tmp")
	if err != nil {
		return journalWriteError("create state temp", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return journalWriteError("write state", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return journalWriteError("sync state", err)
	}
	if err := tmp.Close(); err != nil {
		return journalWriteError("close state", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, stateFileName)); err != nil {
		return journalWriteError("rename state", err)
	}
	return nil
}

// Stats реализует domain.Journal.
func (s *File) Stats(_ context.Context) (domain.JournalStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return domain.JournalStats{}, err
	}
	stats := domain.NewJournalStats()
	for _, d := range s.decisions {
		stats.Add(d)
	}
	return stats, nil
}

// GetDecision реализует domain.DecisionReader.
func (s *File) GetDecision(_ context.Context, itemID string) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return domain.Decision{}, err
	}
	idx, ok := s.index[itemID]
	if !ok {
		return domain.Decision{}, domain.ErrDecisionNotFound
	}
	return s.decisions[idx], nil
}

// ListDecisions реализует domain.DecisionReader.
func (s *File) ListDecisions(_ context.Context, filter domain.DecisionFilter) ([]domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	filter = normalizeFilter(filter)
	result := make([]domain.Decision, 0)
	skipped := 0
	for _, d := range s.decisions {
		if !matchesFilter(d, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, d)
		if len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}
