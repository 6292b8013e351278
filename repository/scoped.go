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
	"fmt"
	"time"

	"github.com/mallardlabs/substrate/types"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DefaultScopeField is the document field carrying the tenant scope.
const DefaultScopeField = "tenantId"

// ScopedRepository layers scope enforcement over the base repository: the
// *ForScope/*ByScope operations compose every filter with a mandatory
// scope-equality clause, so a caller cannot construct a filter that escapes
// its scope. The unscoped base methods remain reachable; that is an
// intentional escape hatch for admin code. Routine tenant code should hold
// the narrower ScopeSafeRepository instead.
type ScopedRepository[T any, PT EntityPtr[T], V any] struct {
	*baseRepositoryImpl[T, PT, V]
	scopeField string
}

// NewScopedRepository returns a scoped repository over the named collection.
// An empty scopeField defaults to DefaultScopeField.
func NewScopedRepository[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, scopeField string, mapper Mapper[T, V]) (*ScopedRepository[T, PT, V], error) {
	return NewScopedRepositoryWithProjection[T, PT, V](db, collection, scopeField, mapper, nil)
}

// NewScopedRepositoryWithProjection is NewScopedRepository with a static
// projection, validated at construction.
func NewScopedRepositoryWithProjection[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, scopeField string, mapper Mapper[T, V], projection types.Projection) (*ScopedRepository[T, PT, V], error) {
	base, err := newBaseRepository[T, PT, V](db, collection, mapper, projection)
	if err != nil {
		return nil, err
	}
	if scopeField == "" {
		scopeField = DefaultScopeField
	}
	return &ScopedRepository[T, PT, V]{
		baseRepositoryImpl: base,
		scopeField:         scopeField,
	}, nil
}

// ScopeField returns the document field used for scope equality.
func (r *ScopedRepository[T, PT, V]) ScopeField() string { return r.scopeField }

// scopedFilter translates the caller's filter and then forces the scope
// clause and soft-delete exclusion on top, overriding anything the caller
// supplied for those fields.
func (r *ScopedRepository[T, PT, V]) scopedFilter(scope string, spec types.FilterSpec) bson.M {
	filter := types.BuildFilter(spec)
	filter[r.scopeField] = scope
	filter[types.FieldDeletedAt] = nil
	return filter
}

func (r *ScopedRepository[T, PT, V]) scopedIDFilter(scope string, oid bson.ObjectID) bson.M {
	return bson.M{
		types.FieldID:        oid,
		r.scopeField:         scope,
		types.FieldDeletedAt: nil,
	}
}

// FindByIDForScope returns the document only when its stored scope matches;
// a foreign-scope document yields (nil, nil), never the document.
func (r *ScopedRepository[T, PT, V]) FindByIDForScope(ctx context.Context, id string, scope string) (*V, error) {
	if scope == "" {
		return nil, r.opError("findByIdForScope", id, fmt.Errorf("scope cannot be empty"))
	}
	oid, err := r.parseID("findByIdForScope", id)
	if err != nil {
		return nil, err
	}
	return r.findOneByFilter(ctx, "findByIdForScope", id, r.scopedIDFilter(scope, oid))
}

// SoftDeleteByScope soft-deletes the document only when its stored scope
// matches. Already-deleted, missing, and foreign-scope documents all yield
// (nil, nil).
func (r *ScopedRepository[T, PT, V]) SoftDeleteByScope(ctx context.Context, id string, scope string) (*V, error) {
	if scope == "" {
		return nil, r.opError("softDeleteByScope", id, fmt.Errorf("scope cannot be empty"))
	}
	oid, err := r.parseID("softDeleteByScope", id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		types.FieldDeletedAt: now,
		types.FieldUpdatedAt: now,
	}}
	return r.updateOneByFilter(ctx, "softDeleteByScope", id, r.scopedIDFilter(scope, oid), update)
}

// CountByScope counts active documents in the scope matching the filter.
func (r *ScopedRepository[T, PT, V]) CountByScope(ctx context.Context, scope string, filter types.FilterSpec) (int64, error) {
	if scope == "" {
		return 0, r.opError("countByScope", "", fmt.Errorf("scope cannot be empty"))
	}
	total, err := r.coll.CountDocuments(ctx, r.scopedFilter(scope, filter))
	if err != nil {
		return 0, r.opError("countByScope", "", err)
	}
	return total, nil
}

// FindManyForScope lists active documents in the scope matching the filter.
func (r *ScopedRepository[T, PT, V]) FindManyForScope(ctx context.Context, scope string, filter types.FilterSpec, limit int64) ([]V, error) {
	if scope == "" {
		return nil, r.opError("findManyForScope", "", fmt.Errorf("scope cannot be empty"))
	}
	return r.findManyByFilter(ctx, "findManyForScope", r.scopedFilter(scope, filter), limit, nil)
}
