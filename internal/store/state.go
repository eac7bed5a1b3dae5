package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/edwinhu/sec-sro-rss/internal/model"
	"github.com/edwinhu/sec-sro-rss/internal/util"
)

// Version identifies the on-disk state layout.
const Version = 1

// State is the set of filings seen across runs, keyed by filing ID. It is
// loaded once at the start of a cycle and written back whole at the end;
// nothing mutates the file in between.
type State struct {
	Version int                     `json:"version"`
	Filings map[string]model.Filing `json:"filings"`
}

func NewState() State {
	return State{Version: Version, Filings: make(map[string]model.Filing)}
}

// Load reads the state file at path. A missing file is a normal first run
// and yields an empty state with no error. An unreadable or corrupt file
// yields an empty state plus the error; the caller logs it and rebuilds from
// scratch.
func Load(path string) (State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return NewState(), fmt.Errorf("store: read %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return NewState(), fmt.Errorf("store: parse %s: %w", path, err)
	}
	if s.Filings == nil {
		s.Filings = make(map[string]model.Filing)
	}
	if s.Version == 0 {
		s.Version = Version
	}
	return s, nil
}

// Merge folds incoming filings into the state. A filing whose ID is already
// present replaces the stored record, the newest scrape being authoritative.
// The return value counts IDs seen for the first time.
func (s State) Merge(incoming []model.Filing) int {
	added := 0
	for _, f := range incoming {
		if _, ok := s.Filings[f.ID]; !ok {
			added++
		}
		s.Filings[f.ID] = f
	}
	return added
}

// All returns every stored filing, newest first.
func (s State) All() []model.Filing {
	out := make([]model.Filing, 0, len(s.Filings))
	for _, f := range s.Filings {
		out = append(out, f)
	}
	model.Sort(out)
	return out
}

// Save writes the state atomically. The serialized form is indented JSON
// with sorted keys, so an unchanged state produces byte-identical output.
func Save(path string, s State) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}
	if err := util.WriteFileAtomic(path, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("store: save %s: %w", path, err)
	}
	return nil
}
