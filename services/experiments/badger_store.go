// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	storagebadger "github.com/switchyard-ai/switchyard/services/storage/badger"
)

// =============================================================================
// Badger-Backed Storage
// =============================================================================

// Key scheme:
//
//	ab_experiment:config:{id}  -> ExperimentConfig JSON
//	ab_experiment:results:{id} -> ExperimentResults JSON
//	ab_experiment:all          -> JSON array of known experiment ids
//
// The index key exists so LoadConfigs and AllResults do not need a
// full prefix scan, and it is maintained in the same transaction as
// the config writes.
const (
	configKeyPrefix  = "ab_experiment:config:"
	resultsKeyPrefix = "ab_experiment:results:"
	indexKey         = "ab_experiment:all"
)

// BadgerStorage is the durable Storage implementation over an
// embedded BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type BadgerStorage struct {
	db *storagebadger.DB
}

// NewBadgerStorage wraps an opened database. The caller keeps
// ownership of the database lifecycle.
func NewBadgerStorage(db *storagebadger.DB) *BadgerStorage {
	return &BadgerStorage{db: db}
}

func configKey(experimentID string) []byte {
	return []byte(configKeyPrefix + experimentID)
}

func resultsKey(experimentID string) []byte {
	return []byte(resultsKeyPrefix + experimentID)
}

// SaveConfig upserts the config and adds its id to the index.
func (s *BadgerStorage) SaveConfig(ctx context.Context, config *ExperimentConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal experiment config %q: %w", config.ID, err)
	}

	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if err := txn.Set(configKey(config.ID), raw); err != nil {
			return fmt.Errorf("set config key: %w", err)
		}
		return s.indexAdd(txn, config.ID)
	})
}

// LoadConfigs returns every stored config, in id order.
func (s *BadgerStorage) LoadConfigs(ctx context.Context) ([]ExperimentConfig, error) {
	var configs []ExperimentConfig

	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		ids, err := s.indexRead(txn)
		if err != nil {
			return err
		}

		for _, id := range ids {
			item, err := txn.Get(configKey(id))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				// Index entry without a config; skip rather than fail
				// the whole load.
				continue
			}
			if err != nil {
				return fmt.Errorf("get config %q: %w", id, err)
			}

			var config ExperimentConfig
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &config)
			}); err != nil {
				return fmt.Errorf("decode config %q: %w", id, err)
			}
			configs = append(configs, config)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// UpdateConfig is an alias for SaveConfig.
func (s *BadgerStorage) UpdateConfig(ctx context.Context, config *ExperimentConfig) error {
	return s.SaveConfig(ctx, config)
}

// DeleteConfig removes the config, its results, and its index entry.
func (s *BadgerStorage) DeleteConfig(ctx context.Context, experimentID string) (bool, error) {
	found := false

	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(configKey(experimentID)); err == nil {
			found = true
		}
		if _, err := txn.Get(resultsKey(experimentID)); err == nil {
			found = true
		}

		if err := txn.Delete(configKey(experimentID)); err != nil {
			return fmt.Errorf("delete config key: %w", err)
		}
		if err := txn.Delete(resultsKey(experimentID)); err != nil {
			return fmt.Errorf("delete results key: %w", err)
		}
		return s.indexRemove(txn, experimentID)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// SaveResults upserts the results document.
func (s *BadgerStorage) SaveResults(ctx context.Context, results *ExperimentResults) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal experiment results %q: %w", results.ExperimentID, err)
	}

	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(resultsKey(results.ExperimentID), raw)
	})
}

// LoadResults returns stored results for an experiment, or nil when
// none exist.
func (s *BadgerStorage) LoadResults(ctx context.Context, experimentID string) (*ExperimentResults, error) {
	var results *ExperimentResults

	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(resultsKey(experimentID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get results %q: %w", experimentID, err)
		}

		var r ExperimentResults
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		}); err != nil {
			return fmt.Errorf("decode results %q: %w", experimentID, err)
		}
		results = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// AllResults returns results for every indexed experiment that has
// any stored.
func (s *BadgerStorage) AllResults(ctx context.Context) ([]ExperimentResults, error) {
	var ids []string
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var err error
		ids, err = s.indexRead(txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	var out []ExperimentResults
	for _, id := range ids {
		r, err := s.LoadResults(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// =============================================================================
// Index Maintenance
// =============================================================================

func (s *BadgerStorage) indexRead(txn *badgerdb.Txn) ([]string, error) {
	item, err := txn.Get([]byte(indexKey))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get index: %w", err)
	}

	var ids []string
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ids)
	}); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return ids, nil
}

func (s *BadgerStorage) indexWrite(txn *badgerdb.Txn, ids []string) error {
	sort.Strings(ids)
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := txn.Set([]byte(indexKey), raw); err != nil {
		return fmt.Errorf("set index: %w", err)
	}
	return nil
}

func (s *BadgerStorage) indexAdd(txn *badgerdb.Txn, experimentID string) error {
	ids, err := s.indexRead(txn)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == experimentID {
			return nil
		}
	}
	return s.indexWrite(txn, append(ids, experimentID))
}

func (s *BadgerStorage) indexRemove(txn *badgerdb.Txn, experimentID string) error {
	ids, err := s.indexRead(txn)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != experimentID {
			kept = append(kept, id)
		}
	}
	return s.indexWrite(txn, kept)
}

var _ Storage = (*BadgerStorage)(nil)
