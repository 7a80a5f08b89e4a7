package correlate

import (
	"context"
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/sells-group/breakwatch/internal/cluster"
	"github.com/sells-group/breakwatch/internal/model"
)

// memStore is an in-memory Store. Each WithinTx works on a copy of the
// state that replaces the committed state only when fn succeeds.
type memStore struct {
	signals   map[string]model.Signal
	incidents map[string]model.Incident
	links     map[string]string // signal id -> incident id
	locked    [][]string

	failOn string
}

func newMemStore() *memStore {
	return &memStore{
		signals:   map[string]model.Signal{},
		incidents: map[string]model.Incident{},
		links:     map[string]string{},
	}
}

var errInjected = errors.New("injected failure")

func (m *memStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:     m,
		signals:   maps.Clone(m.signals),
		incidents: maps.Clone(m.incidents),
		links:     maps.Clone(m.links),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.signals, m.incidents, m.links = tx.signals, tx.incidents, tx.links
	return nil
}

type memTx struct {
	store     *memStore
	signals   map[string]model.Signal
	incidents map[string]model.Incident
	links     map[string]string
}

func (t *memTx) fail(op string) error {
	if t.store.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) LockBuckets(_ context.Context, keys []string) error {
	t.store.locked = append(t.store.locked, keys)
	return t.fail("LockBuckets")
}

func (t *memTx) InsertSignal(_ context.Context, sig *model.Signal) error {
	if err := t.fail("InsertSignal"); err != nil {
		return err
	}
	t.signals[sig.ID] = *sig
	return nil
}

func (t *memTx) ListCandidates(_ context.Context, notBefore, notAfter time.Time) ([]cluster.Candidate, error) {
	if err := t.fail("ListCandidates"); err != nil {
		return nil, err
	}
	var out []cluster.Candidate
	for _, inc := range t.incidents {
		if inc.LastSeen.Before(notBefore) || inc.LastSeen.After(notAfter) {
			continue
		}
		out = append(out, cluster.Candidate{ID: inc.ID, Latitude: inc.Latitude, Longitude: inc.Longitude, LastSeen: inc.LastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertIncident(_ context.Context, inc *model.Incident) error {
	if err := t.fail("InsertIncident"); err != nil {
		return err
	}
	t.incidents[inc.ID] = *inc
	return nil
}

func (t *memTx) ExtendIncident(_ context.Context, id string, observedAt, now time.Time) error {
	if err := t.fail("ExtendIncident"); err != nil {
		return err
	}
	inc, ok := t.incidents[id]
	if !ok {
		return model.ErrNotFound
	}
	if observedAt.Before(inc.FirstSeen) {
		inc.FirstSeen = observedAt
	}
	if observedAt.After(inc.LastSeen) {
		inc.LastSeen = observedAt
	}
	inc.UpdatedAt = now
	t.incidents[id] = inc
	return nil
}

func (t *memTx) LinkSignal(_ context.Context, link model.IncidentSignal) error {
	if err := t.fail("LinkSignal"); err != nil {
		return err
	}
	t.links[link.SignalID] = link.IncidentID
	return nil
}

func (t *memTx) LinkedSignals(_ context.Context, incidentID string) ([]model.LinkedSignal, error) {
	if err := t.fail("LinkedSignals"); err != nil {
		return nil, err
	}
	var out []model.LinkedSignal
	for sid, iid := range t.links {
		if iid != incidentID {
			continue
		}
		s := t.signals[sid]
		out = append(out, model.LinkedSignal{SourceType: s.SourceType, Title: s.Title, Content: s.Content})
	}
	return out, nil
}

func (t *memTx) UpdateScore(_ context.Context, id string, score float64, bd model.ScoreBreakdown, now time.Time) error {
	if err := t.fail("UpdateScore"); err != nil {
		return err
	}
	inc, ok := t.incidents[id]
	if !ok {
		return model.ErrNotFound
	}
	inc.ConfidenceScore = score
	inc.ScoreBreakdown = bd
	inc.UpdatedAt = now
	t.incidents[id] = inc
	return nil
}

func (t *memTx) IncidentIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(t.incidents))
	for id := range t.incidents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
