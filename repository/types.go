/*
 * Copyright 2025 mallardlabs.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mallardlabs/substrate/types"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ErrInvalidID marks an id string that is not a valid document id.
var ErrInvalidID = errors.New("invalid document id")

// EntityPtr constrains a repository's document type: *T must satisfy the
// entity contract, usually by embedding types.Base.
type EntityPtr[T any] interface {
	types.Entity
	*T
}

// Mapper converts a stored document into the view shape returned to callers.
// A mapper error is never swallowed; it surfaces as an OperationError
// carrying the offending document's id.
type Mapper[T any, V any] func(doc *T) (V, error)

// OperationError names the collection, operation, and document id behind a
// repository failure.
type OperationError struct {
	Collection string
	Op         string
	ID         string
	Err        error
}

func (e *OperationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("repository %s.%s (id=%s): %v", e.Collection, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("repository %s.%s: %v", e.Collection, e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// CrudRepository defines single-document operations for a generic entity
// type. Lookup methods return (nil, nil) when no active document matches.
type CrudRepository[T any, V any] interface {
	Create(ctx context.Context, doc *T) (*V, error)

	FindByID(ctx context.Context, id string) (*V, error)

	FindByIDs(ctx context.Context, ids []string) (map[string]V, error)

	UpdateByID(ctx context.Context, id string, update types.UpdateSpec) (*V, error)

	SoftDelete(ctx context.Context, id string) (*V, error)

	HardDelete(ctx context.Context, id string) (bool, error)

	Count(ctx context.Context, filter types.FilterSpec) (int64, error)

	FindOne(ctx context.Context, filter types.FilterSpec) (*V, error)

	FindMany(ctx context.Context, filter types.FilterSpec, limit int64) ([]V, error)
}

// BulkRepository defines batched operations over many documents.
type BulkRepository[T any, V any] interface {
	CreateMany(ctx context.Context, docs []*T) (*types.BulkResult[V], error)
	SoftDeleteMany(ctx context.Context, ids []string) (*types.BulkDeleteResult, error)
	HardDeleteMany(ctx context.Context, ids []string) (*types.BulkDeleteResult, error)
}

// PageQueryRepository defines pagination functionality for listing views.
type PageQueryRepository[V any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[V], error)
}

// Repository combines CRUD, bulk, and pagination operations and exposes the
// raw collection handle for advanced use cases.
type Repository[T any, V any] interface {
	CrudRepository[T, V]
	BulkRepository[T, V]
	PageQueryRepository[V]
	Collection() *mongo.Collection
	Name() string
}

// ScopeSafeRepository is the narrow contract tenant-facing code holds: every
// read and mutation is composed with a mandatory scope-equality clause, and
// the unscoped operations are absent from the type. UnscopedAdmin is the one
// explicit escape hatch for privileged code.
type ScopeSafeRepository[T any, V any] interface {
	Create(ctx context.Context, doc *T) (*V, error)
	FindByIDForScope(ctx context.Context, id string, scope string) (*V, error)
	SoftDeleteByScope(ctx context.Context, id string, scope string) (*V, error)
	CountByScope(ctx context.Context, scope string, filter types.FilterSpec) (int64, error)
	FindManyForScope(ctx context.Context, scope string, filter types.FilterSpec, limit int64) ([]V, error)
	UnscopedAdmin() Repository[T, V]
}
