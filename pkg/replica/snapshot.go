package replica

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
)

type snapshotData struct {
	LastLogUpdate cluster.LogUpdate `json:"llu"`
	Topics        []Topic           `json:"topics"`
}

// Snapshot returns the full replica state, snappy-compressed.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() ([]byte, error) {
	data := snapshotData{
		LastLogUpdate: s.llu,
		Topics:        make([]Topic, 0, len(s.topics)),
	}
	for _, name := range slices.Sorted(maps.Keys(s.topics)) {
		data.Topics = append(data.Topics, s.topics[name].clone())
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// decodeSnapshot turns a snapshot back into a topic map and its watermark.
func decodeSnapshot(b []byte) (map[string]*Topic, cluster.LogUpdate, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, cluster.LogUpdate{}, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	var data snapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, cluster.LogUpdate{}, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}

	topics := make(map[string]*Topic, len(data.Topics))
	for _, t := range data.Topics {
		if t.Subscribers == nil {
			t.Subscribers = make(map[string]Subscriber)
		}
		topics[t.Name] = &t
	}
	return topics, data.LastLogUpdate, nil
}

// Restore replaces the replica's content with a snapshot.
func (s *Store) Restore(b []byte) error {
	topics, llu, err := decodeSnapshot(b)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.topics = topics
	s.llu = llu
	s.mu.Unlock()
	return nil
}
