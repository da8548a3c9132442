// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"

	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
)

const (
	// DefaultBatchSize is the default number of entries handled per batch
	DefaultBatchSize = 100
)

// EntryIterator walks every index entry in batches.
type EntryIterator struct {
	index     storage.IndexRepository
	batchSize int
}

// NewEntryIterator creates a new entry iterator.
// batchSize: entries per batch; values <= 0 select DefaultBatchSize
func NewEntryIterator(index storage.IndexRepository, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &EntryIterator{
		index:     index,
		batchSize: batchSize,
	}
}

// BatchSize returns the number of entries handed to each callback.
func (it *EntryIterator) BatchSize() int {
	return it.batchSize
}

// ForEach calls fn for each batch until all entries are visited, fn fails
// or ctx is done. fn may write to the index.
func (it *EntryIterator) ForEach(ctx context.Context, fn func([]*core.IndexedVector) error) error {
	return it.index.ForEachBatch(ctx, it.batchSize, func(batch []*core.IndexedVector) error {
		if err := fn(batch); err != nil {
			return err
		}
		return ctx.Err()
	})
}
