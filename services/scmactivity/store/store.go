// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/scmactivity/pkg/validation"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/fingerprint"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

const (
	measurePrefix = "m/"
	runPrefix     = "r/"
	latestRunKey  = "r/latest"
	keySeparator  = "\x00"
)

// Record is one stored measure.
type Record struct {
	Resource  string    `json:"resource"`
	Qualifier string    `json:"qualifier"`
	Metric    string    `json:"metric"`
	Value     string    `json:"value"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// measureRecord is the on-disk value; the resource and metric live in the key.
type measureRecord struct {
	Qualifier string    `json:"q"`
	Value     string    `json:"v"`
	RunID     string    `json:"run,omitempty"`
	UpdatedAt time.Time `json:"at"`
}

// Store is the badger-backed measure store.
//
// # Description
//
// Implements activity.BaselineStore and activity.MeasureSink. Each
// SaveMeasures call commits atomically, so a resource's measures are
// never half-written.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db     *badger.DB
	gc     *gcLoop
	logger *slog.Logger
	now    func() time.Time

	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

var (
	_ activity.BaselineStore = (*Store)(nil)
	_ activity.MeasureSink   = (*Store)(nil)
)

// Open opens (or creates) a store.
//
// # Inputs
//
//   - opts: Database options. Path is required unless InMemory is set.
//
// # Outputs
//
//   - *Store: The opened store. Call Close when done.
//   - error: Non-nil if the database cannot be opened.
func Open(opts Options) (*Store, error) {
	db, err := openBadger(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if opts.GCInterval > 0 && !opts.InMemory {
		s.gc = startGC(db, opts.GCInterval, opts.GCDiscardRatio, logger)
	}
	return s, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.gc != nil {
			s.gc.stop()
		}
		err = s.db.Close()
	})
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func measureKey(resource, metric string) []byte {
	return []byte(measurePrefix + resource + keySeparator + metric)
}

func resourcePrefix(resource string) []byte {
	return []byte(measurePrefix + resource + keySeparator)
}

// FingerprintOf returns the scm_hash recorded for res by a previous run.
func (s *Store) FingerprintOf(ctx context.Context, res activity.Resource) (fingerprint.Fingerprint, bool, error) {
	var rec measureRecord
	found := false
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(measureKey(res.Key, activity.MetricSCMHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("read baseline for %s: %w", res.Key, err)
	}
	if !found {
		return "", false, nil
	}
	fp, err := fingerprint.Parse(rec.Value)
	if err != nil {
		return "", false, fmt.Errorf("read baseline for %s: %w", res.Key, err)
	}
	return fp, true, nil
}

// SaveMeasures writes measures for res in one transaction, stamping them
// with the run id carried by ctx.
func (s *Store) SaveMeasures(ctx context.Context, res activity.Resource, measures []activity.Measure) error {
	if err := validation.ValidateResourceKey(res.Key); err != nil {
		return fmt.Errorf("save measures: %w", err)
	}
	runID := activity.RunIDFromContext(ctx)
	at := s.now().UTC()
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, m := range measures {
			val, err := json.Marshal(measureRecord{
				Qualifier: res.Qualifier,
				Value:     m.Value,
				RunID:     runID,
				UpdatedAt: at,
			})
			if err != nil {
				return err
			}
			if err := txn.Set(measureKey(res.Key, m.Metric), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save measures for %s: %w", res.Key, err)
	}
	return nil
}

// Measures returns every stored measure for a resource key, sorted by
// metric. ErrNotFound when the resource has none.
func (s *Store) Measures(ctx context.Context, resource string) ([]Record, error) {
	var records []Record
	prefix := resourcePrefix(resource)
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 8})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			metric := string(bytes.TrimPrefix(item.Key(), prefix))
			var rec measureRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s/%s: %w", resource, metric, err)
			}
			records = append(records, Record{
				Resource:  resource,
				Qualifier: rec.Qualifier,
				Metric:    metric,
				Value:     rec.Value,
				RunID:     rec.RunID,
				UpdatedAt: rec.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list measures for %s: %w", resource, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("measures for %s: %w", resource, ErrNotFound)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Metric < records[j].Metric })
	return records, nil
}

// Resources returns the keys of every resource with stored measures.
func (s *Store) Resources(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(measurePrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), measurePrefix)
			if idx := strings.Index(key, keySeparator); idx >= 0 {
				seen[key[:idx]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// SaveRun stores a run report and marks it as the latest.
func (s *Store) SaveRun(ctx context.Context, report *activity.RunReport) error {
	if report == nil || report.RunID == "" {
		return errors.New("run report with an id is required")
	}
	val, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", report.RunID, err)
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(runPrefix+report.RunID), val); err != nil {
			return err
		}
		return txn.Set([]byte(latestRunKey), []byte(report.RunID))
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	return nil
}

// Run returns the report stored under id.
func (s *Store) Run(ctx context.Context, id string) (*activity.RunReport, error) {
	var report activity.RunReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, []byte(runPrefix+id), &report)
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return &report, nil
}

// LatestRun returns the most recently saved run report.
func (s *Store) LatestRun(ctx context.Context) (*activity.RunReport, error) {
	var report activity.RunReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestRunKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, []byte(runPrefix+string(id)), &report)
	})
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &report, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
