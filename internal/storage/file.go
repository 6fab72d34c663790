package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "minerva/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.prompts.jsonl (append-only journal of prompt and status records)
//
// Recent replays the journal; the latest status per id wins.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

const (
	recPrompt = "prompt"
	recStatus = "status"
)

type journalRecord struct {
	Kind   string        `json:"kind"`
	Prompt *PromptRecord `json:"prompt,omitempty"`
	ID     string        `json:"id,omitempty"`
	Status string        `json:"status,omitempty"`
	At     time.Time     `json:"at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	journal := prefix + ".prompts.jsonl"
	f, err := os.OpenFile(journal, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: journal, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) append(r journalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("prompt journal closed")
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) AppendPrompt(ctx context.Context, r PromptRecord) error {
	_ = ctx
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return s.append(journalRecord{Kind: recPrompt, Prompt: &r, At: r.CreatedAt})
}

func (s *fileStore) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	_ = ctx
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	return s.append(journalRecord{Kind: recStatus, ID: id, Status: status, At: at})
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]PromptRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byID := map[string]*PromptRecord{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Kind {
		case recPrompt:
			if r.Prompt != nil && r.Prompt.ID != "" {
				p := *r.Prompt
				byID[p.ID] = &p
			}
		case recStatus:
			// Status for a prompt never journaled is dropped.
			if p := byID[r.ID]; p != nil {
				p.Status = r.Status
				p.UpdatedAt = r.At
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]PromptRecord, 0, len(byID))
	for _, p := range byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
