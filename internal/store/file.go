package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gateport/internal/session"
)

// FileStore keeps one indented JSON file per session under its directory,
// named <code>.json, so operators can inspect sessions with nothing but cat.
type FileStore struct {
	dir string
}

func NewFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (st *FileStore) path(code string) string {
	return filepath.Join(st.dir, code+".json")
}

func (st *FileStore) Save(snap session.Snapshot) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal session record: %v", err)
		return
	}
	if err := os.WriteFile(st.path(snap.Code), data, 0644); err != nil {
		log.Printf("Failed to write session record %s: %v", snap.Code, err)
	}
}

func (st *FileStore) Get(code string) (session.Snapshot, bool) {
	data, err := os.ReadFile(st.path(code))
	if err != nil {
		return session.Snapshot{}, false
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("Failed to parse session record %s: %v", code, err)
		return session.Snapshot{}, false
	}
	return snap, true
}

func (st *FileStore) List() []session.Snapshot {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		log.Printf("Failed to list session records: %v", err)
		return nil
	}

	var out []session.Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if snap, ok := st.Get(strings.TrimSuffix(name, ".json")); ok {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (st *FileStore) Delete(code string) {
	if err := os.Remove(st.path(code)); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to delete session record %s: %v", code, err)
	}
}

func (st *FileStore) Close() error {
	return nil
}

func (st *FileStore) Dir() string {
	return st.dir
}
