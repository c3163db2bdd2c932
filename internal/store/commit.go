package store

import "fmt"

// CommitBatch writes every module buffered in batch within a single
// transaction, invalidating dependents of modules whose source changed.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	modules := append([]Module(nil), batch.Modules...)
	batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for i := range modules {
		m := &modules[i]
		if err := invalidateDependentsTx(tx, m); err != nil {
			return fmt.Errorf("commit batch: module %q: %w", m.Name, err)
		}
		if _, err := upsertModuleTx(tx, m); err != nil {
			return fmt.Errorf("commit batch: module %q: %w", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	// Keep anything buffered while the transaction ran.
	batch.mu.Lock()
	batch.Modules = batch.Modules[len(modules):]
	for _, m := range modules {
		delete(batch.summaries, m.Name+"\x00"+m.Hash)
	}
	batch.mu.Unlock()
	return nil
}
