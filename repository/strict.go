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

	"github.com/mallardlabs/substrate/types"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// strictScopedImpl holds the scoped repository by composition, not
// embedding, so the unscoped base methods are truly absent from the
// ScopeSafeRepository type callers receive.
type strictScopedImpl[T any, PT EntityPtr[T], V any] struct {
	scoped *ScopedRepository[T, PT, V]
}

// NewStrictScopedRepository returns the narrow scope-safe contract over the
// named collection. Privileged code reaches the unscoped operations only
// through UnscopedAdmin.
func NewStrictScopedRepository[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, scopeField string, mapper Mapper[T, V]) (ScopeSafeRepository[T, V], error) {
	return NewStrictScopedRepositoryWithProjection[T, PT, V](db, collection, scopeField, mapper, nil)
}

// NewStrictScopedRepositoryWithProjection is NewStrictScopedRepository with
// a static projection, validated at construction.
func NewStrictScopedRepositoryWithProjection[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, scopeField string, mapper Mapper[T, V], projection types.Projection) (ScopeSafeRepository[T, V], error) {
	scoped, err := NewScopedRepositoryWithProjection[T, PT, V](db, collection, scopeField, mapper, projection)
	if err != nil {
		return nil, err
	}
	return &strictScopedImpl[T, PT, V]{scoped: scoped}, nil
}

func (r *strictScopedImpl[T, PT, V]) Create(ctx context.Context, doc *T) (*V, error) {
	return r.scoped.Create(ctx, doc)
}

func (r *strictScopedImpl[T, PT, V]) FindByIDForScope(ctx context.Context, id string, scope string) (*V, error) {
	return r.scoped.FindByIDForScope(ctx, id, scope)
}

func (r *strictScopedImpl[T, PT, V]) SoftDeleteByScope(ctx context.Context, id string, scope string) (*V, error) {
	return r.scoped.SoftDeleteByScope(ctx, id, scope)
}

func (r *strictScopedImpl[T, PT, V]) CountByScope(ctx context.Context, scope string, filter types.FilterSpec) (int64, error) {
	return r.scoped.CountByScope(ctx, scope, filter)
}

func (r *strictScopedImpl[T, PT, V]) FindManyForScope(ctx context.Context, scope string, filter types.FilterSpec, limit int64) ([]V, error) {
	return r.scoped.FindManyForScope(ctx, scope, filter, limit)
}

// UnscopedAdmin returns the full repository. The verbose opt-in is the
// point: routine tenant code never holds a type with unscoped methods.
func (r *strictScopedImpl[T, PT, V]) UnscopedAdmin() Repository[T, V] {
	return r.scoped.baseRepositoryImpl
}
