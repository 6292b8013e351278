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
	"time"

	"github.com/mallardlabs/substrate/types"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultFindLimit caps unbounded FindMany calls.
const DefaultFindLimit = 1000

type baseRepositoryImpl[T any, PT EntityPtr[T], V any] struct {
	coll       *mongo.Collection
	name       string
	mapper     Mapper[T, V]
	projection types.Projection
}

// NewRepository returns a generic repository over the named collection. The
// mapper converts stored documents into the caller-facing view type.
func NewRepository[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, mapper Mapper[T, V]) (Repository[T, V], error) {
	return NewRepositoryWithProjection[T, PT, V](db, collection, mapper, nil)
}

// NewRepositoryWithProjection returns a repository whose read operations
// apply a static projection. The projection is validated here, once, so a
// bad shape fails at wiring time instead of on the first query.
func NewRepositoryWithProjection[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, mapper Mapper[T, V], projection types.Projection) (Repository[T, V], error) {
	r, err := newBaseRepository[T, PT, V](db, collection, mapper, projection)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newBaseRepository[T any, PT EntityPtr[T], V any](db *mongo.Database, collection string, mapper Mapper[T, V], projection types.Projection) (*baseRepositoryImpl[T, PT, V], error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	if mapper == nil {
		return nil, fmt.Errorf("mapper cannot be nil")
	}
	if projection != nil {
		if err := types.ValidateProjection(projection); err != nil {
			return nil, fmt.Errorf("invalid projection for %s: %w", collection, err)
		}
	}
	return &baseRepositoryImpl[T, PT, V]{
		coll:       db.Collection(collection),
		name:       collection,
		mapper:     mapper,
		projection: projection,
	}, nil
}

func (r *baseRepositoryImpl[T, PT, V]) Collection() *mongo.Collection { return r.coll }

func (r *baseRepositoryImpl[T, PT, V]) Name() string { return r.name }

func (r *baseRepositoryImpl[T, PT, V]) opError(op, id string, err error) error {
	return &OperationError{Collection: r.name, Op: op, ID: id, Err: err}
}

func (r *baseRepositoryImpl[T, PT, V]) parseID(op, id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, r.opError(op, id, ErrInvalidID)
	}
	return oid, nil
}

func (r *baseRepositoryImpl[T, PT, V]) mapDoc(op string, doc *T) (*V, error) {
	view, err := r.mapper(doc)
	if err != nil {
		return nil, r.opError(op, PT(doc).GetID().Hex(), fmt.Errorf("mapping failed: %w", err))
	}
	return &view, nil
}

// buildFilter translates a filter spec and appends the soft-delete exclusion
// unless the caller's spec mentions the deletedAt field itself.
func (r *baseRepositoryImpl[T, PT, V]) buildFilter(spec types.FilterSpec) bson.M {
	filter := types.BuildFilter(spec)
	if _, overridden := spec[types.FieldDeletedAt]; !overridden {
		filter[types.FieldDeletedAt] = nil
	}
	return filter
}

func (r *baseRepositoryImpl[T, PT, V]) idFilter(oid bson.ObjectID) bson.M {
	return bson.M{types.FieldID: oid, types.FieldDeletedAt: nil}
}

func (r *baseRepositoryImpl[T, PT, V]) Create(ctx context.Context, doc *T) (*V, error) {
	e := PT(doc)
	if e.GetID().IsZero() {
		e.SetID(bson.NewObjectID())
	}
	e.StampCreated(time.Now().UTC())

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, r.opError("create", e.GetID().Hex(), err)
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		e.SetID(id)
	}
	return r.mapDoc("create", doc)
}

func (r *baseRepositoryImpl[T, PT, V]) FindByID(ctx context.Context, id string) (*V, error) {
	oid, err := r.parseID("findById", id)
	if err != nil {
		return nil, err
	}
	return r.findOneByFilter(ctx, "findById", id, r.idFilter(oid))
}

func (r *baseRepositoryImpl[T, PT, V]) FindByIDs(ctx context.Context, ids []string) (map[string]V, error) {
	oids := dedupeObjectIDs(ids)
	views := make(map[string]V, len(oids))
	if len(oids) == 0 {
		return views, nil
	}

	filter := bson.M{
		types.FieldID:        bson.M{"$in": oids},
		types.FieldDeletedAt: nil,
	}
	opts := options.Find()
	if r.projection != nil {
		opts.SetProjection(r.projection)
	}
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, r.opError("findByIds", "", err)
	}
	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, r.opError("findByIds", "", err)
	}
	for i := range docs {
		view, err := r.mapDoc("findByIds", &docs[i])
		if err != nil {
			return nil, err
		}
		views[PT(&docs[i]).GetID().Hex()] = *view
	}
	return views, nil
}

func (r *baseRepositoryImpl[T, PT, V]) UpdateByID(ctx context.Context, id string, update types.UpdateSpec) (*V, error) {
	oid, err := r.parseID("updateById", id)
	if err != nil {
		return nil, err
	}
	return r.updateOneByFilter(ctx, "updateById", id, r.idFilter(oid), types.BuildUpdateSet(stripProtected(update)))
}

func (r *baseRepositoryImpl[T, PT, V]) SoftDelete(ctx context.Context, id string) (*V, error) {
	oid, err := r.parseID("softDelete", id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		types.FieldDeletedAt: now,
		types.FieldUpdatedAt: now,
	}}
	return r.updateOneByFilter(ctx, "softDelete", id, r.idFilter(oid), update)
}

func (r *baseRepositoryImpl[T, PT, V]) HardDelete(ctx context.Context, id string) (bool, error) {
	oid, err := r.parseID("hardDelete", id)
	if err != nil {
		return false, err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{types.FieldID: oid})
	if err != nil {
		return false, r.opError("hardDelete", id, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *baseRepositoryImpl[T, PT, V]) Count(ctx context.Context, filter types.FilterSpec) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, r.buildFilter(filter))
	if err != nil {
		return 0, r.opError("count", "", err)
	}
	return total, nil
}

func (r *baseRepositoryImpl[T, PT, V]) FindOne(ctx context.Context, filter types.FilterSpec) (*V, error) {
	return r.findOneByFilter(ctx, "findOne", "", r.buildFilter(filter))
}

func (r *baseRepositoryImpl[T, PT, V]) FindMany(ctx context.Context, filter types.FilterSpec, limit int64) ([]V, error) {
	return r.findManyByFilter(ctx, "findMany", r.buildFilter(filter), limit, nil)
}

func (r *baseRepositoryImpl[T, PT, V]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[V], error) {
	filter := r.buildFilter(pageRequest.GetFilter())
	pagination := types.NewDefaultPagination[V](pageRequest.GetPage(), pageRequest.GetPageSize())

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, r.opError("page", "", err)
	}
	if total == 0 {
		return pagination, nil
	}

	opts := options.Find().
		SetSkip(int64(pageRequest.GetOffset())).
		SetLimit(int64(pageRequest.GetPageSize()))
	if sort := pageRequest.SortDoc(); len(sort) > 0 {
		opts.SetSort(sort)
	}
	if r.projection != nil {
		opts.SetProjection(r.projection)
	}
	items, err := r.findAll(ctx, "page", filter, opts)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

func (r *baseRepositoryImpl[T, PT, V]) CreateMany(ctx context.Context, docs []*T) (*types.BulkResult[V], error) {
	result := &types.BulkResult[V]{Created: []V{}, Errors: []types.BulkError{}}
	if len(docs) == 0 {
		return result, nil
	}

	now := time.Now().UTC()
	payload := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		e := PT(doc)
		if e.GetID().IsZero() {
			e.SetID(bson.NewObjectID())
		}
		e.StampCreated(now)
		payload = append(payload, doc)
	}

	// Unordered so one bad record does not block the rest.
	_, err := r.coll.InsertMany(ctx, payload, options.InsertMany().SetOrdered(false))
	return r.assembleBulkCreate(docs, err)
}

// assembleBulkCreate reconstructs the per-document outcome of an unordered
// insert: each write error becomes an indexed BulkError entry, and every
// other document maps to a created view.
func (r *baseRepositoryImpl[T, PT, V]) assembleBulkCreate(docs []*T, insertErr error) (*types.BulkResult[V], error) {
	result := &types.BulkResult[V]{Created: []V{}, Errors: []types.BulkError{}}
	failed := map[int]struct{}{}
	if insertErr != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(insertErr, &bwe) {
			return nil, r.opError("createMany", "", insertErr)
		}
		for _, we := range bwe.WriteErrors {
			failed[we.Index] = struct{}{}
			result.Errors = append(result.Errors, types.BulkError{Index: we.Index, Err: we.Message})
		}
	}

	for i, doc := range docs {
		if _, bad := failed[i]; bad {
			continue
		}
		view, err := r.mapDoc("createMany", doc)
		if err != nil {
			return nil, err
		}
		result.Created = append(result.Created, *view)
		result.InsertedCount++
	}
	return result, nil
}

func (r *baseRepositoryImpl[T, PT, V]) SoftDeleteMany(ctx context.Context, ids []string) (*types.BulkDeleteResult, error) {
	existing, notFound, err := r.partitionExisting(ctx, "softDeleteMany", ids, true)
	if err != nil {
		return nil, err
	}
	result := &types.BulkDeleteResult{NotFound: notFound}
	if len(existing) == 0 {
		return result, nil
	}

	now := time.Now().UTC()
	res, err := r.coll.UpdateMany(ctx,
		bson.M{types.FieldID: bson.M{"$in": existing}, types.FieldDeletedAt: nil},
		bson.M{"$set": bson.M{types.FieldDeletedAt: now, types.FieldUpdatedAt: now}},
	)
	if err != nil {
		return nil, r.opError("softDeleteMany", "", err)
	}
	result.Deleted = res.ModifiedCount
	return result, nil
}

func (r *baseRepositoryImpl[T, PT, V]) HardDeleteMany(ctx context.Context, ids []string) (*types.BulkDeleteResult, error) {
	existing, notFound, err := r.partitionExisting(ctx, "hardDeleteMany", ids, false)
	if err != nil {
		return nil, err
	}
	result := &types.BulkDeleteResult{NotFound: notFound}
	if len(existing) == 0 {
		return result, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{types.FieldID: bson.M{"$in": existing}})
	if err != nil {
		return nil, r.opError("hardDeleteMany", "", err)
	}
	result.Deleted = res.DeletedCount
	return result, nil
}

// partitionExisting pre-queries which of the requested ids are present so
// the notFound list is exact rather than inferred from a count delta. The
// check is advisory: concurrent deletes may still shrink the matched set.
func (r *baseRepositoryImpl[T, PT, V]) partitionExisting(ctx context.Context, op string, ids []string, activeOnly bool) ([]bson.ObjectID, []string, error) {
	oids, hexByOID, notFound := splitRequestedIDs(ids)
	if len(oids) == 0 {
		return nil, notFound, nil
	}

	filter := bson.M{types.FieldID: bson.M{"$in": oids}}
	if activeOnly {
		filter[types.FieldDeletedAt] = nil
	}
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{types.FieldID: 1}))
	if err != nil {
		return nil, nil, r.opError(op, "", err)
	}
	var docs []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, nil, r.opError(op, "", err)
	}

	found := make([]bson.ObjectID, 0, len(docs))
	for _, d := range docs {
		found = append(found, d.ID)
	}
	existing, notFound := reconcileExisting(oids, hexByOID, found, notFound)
	return existing, notFound, nil
}

// splitRequestedIDs dedupes and parses the requested ids; malformed ids go
// straight to the notFound list.
func splitRequestedIDs(ids []string) ([]bson.ObjectID, map[bson.ObjectID]string, []string) {
	requested := dedupeIDs(ids)
	notFound := []string{}

	oids := make([]bson.ObjectID, 0, len(requested))
	hexByOID := make(map[bson.ObjectID]string, len(requested))
	for _, id := range requested {
		oid, err := bson.ObjectIDFromHex(id)
		if err != nil {
			notFound = append(notFound, id)
			continue
		}
		oids = append(oids, oid)
		hexByOID[oid] = id
	}
	return oids, hexByOID, notFound
}

// reconcileExisting keeps the requested ids the pre-query saw and reports
// the remainder as notFound in request order.
func reconcileExisting(oids []bson.ObjectID, hexByOID map[bson.ObjectID]string, found []bson.ObjectID, notFound []string) ([]bson.ObjectID, []string) {
	foundSet := make(map[bson.ObjectID]struct{}, len(found))
	for _, oid := range found {
		foundSet[oid] = struct{}{}
	}
	for _, oid := range oids {
		if _, ok := foundSet[oid]; !ok {
			notFound = append(notFound, hexByOID[oid])
		}
	}
	return found, notFound
}

func (r *baseRepositoryImpl[T, PT, V]) findOneByFilter(ctx context.Context, op, id string, filter bson.M) (*V, error) {
	opts := options.FindOne()
	if r.projection != nil {
		opts.SetProjection(r.projection)
	}
	doc := new(T)
	err := r.coll.FindOne(ctx, filter, opts).Decode(doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, r.opError(op, id, err)
	}
	return r.mapDoc(op, doc)
}

func (r *baseRepositoryImpl[T, PT, V]) updateOneByFilter(ctx context.Context, op, id string, filter bson.M, update bson.M) (*V, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if r.projection != nil {
		opts.SetProjection(r.projection)
	}
	doc := new(T)
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, r.opError(op, id, err)
	}
	return r.mapDoc(op, doc)
}

func (r *baseRepositoryImpl[T, PT, V]) findManyByFilter(ctx context.Context, op string, filter bson.M, limit int64, sort bson.D) ([]V, error) {
	if limit <= 0 || limit > DefaultFindLimit {
		limit = DefaultFindLimit
	}
	opts := options.Find().SetLimit(limit)
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	if r.projection != nil {
		opts.SetProjection(r.projection)
	}
	return r.findAll(ctx, op, filter, opts)
}

func (r *baseRepositoryImpl[T, PT, V]) findAll(ctx context.Context, op string, filter bson.M, opts *options.FindOptionsBuilder) ([]V, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, r.opError(op, "", err)
	}
	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, r.opError(op, "", err)
	}
	views := make([]V, 0, len(docs))
	for i := range docs {
		view, err := r.mapDoc(op, &docs[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// stripProtected drops fields callers must not overwrite through a partial
// update. The update builder stamps updatedAt itself.
func stripProtected(update types.UpdateSpec) types.UpdateSpec {
	cleaned := make(types.UpdateSpec, len(update))
	for field, value := range update {
		switch field {
		case types.FieldID, types.FieldCreatedAt, types.FieldUpdatedAt:
			continue
		}
		cleaned[field] = value
	}
	return cleaned
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// dedupeObjectIDs parses and de-duplicates hex ids, silently dropping
// malformed ones: for batched lookups a bad id is simply absent from the
// result, never an error.
func dedupeObjectIDs(ids []string) []bson.ObjectID {
	seen := make(map[bson.ObjectID]struct{}, len(ids))
	out := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := bson.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if _, dup := seen[oid]; dup {
			continue
		}
		seen[oid] = struct{}{}
		out = append(out, oid)
	}
	return out
}
