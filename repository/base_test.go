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
	"testing"

	"github.com/mallardlabs/substrate/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type userDoc struct {
	types.Base `bson:",inline"`
	TenantID   string `bson:"tenantId"`
	Email      string `bson:"email"`
	Name       string `bson:"name"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func userMapper(doc *userDoc) (userView, error) {
	return userView{ID: doc.HexID(), Email: doc.Email, Name: doc.Name}, nil
}

// testDatabase builds a database handle without touching the network; the
// driver dials lazily and these tests never issue an operation.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database("testdb")
}

func newUserRepo(t *testing.T) *baseRepositoryImpl[userDoc, *userDoc, userView] {
	t.Helper()
	r, err := newBaseRepository[userDoc, *userDoc, userView](testDatabase(t), "users", userMapper, nil)
	require.NoError(t, err)
	return r
}

func TestNewRepositoryValidation(t *testing.T) {
	db := testDatabase(t)

	_, err := NewRepository[userDoc, *userDoc, userView](nil, "users", userMapper)
	assert.Error(t, err)

	_, err = NewRepository[userDoc, *userDoc, userView](db, "", userMapper)
	assert.Error(t, err)

	_, err = NewRepository[userDoc, *userDoc, userView](db, "users", nil)
	assert.Error(t, err)

	repo, err := NewRepository[userDoc, *userDoc, userView](db, "users", userMapper)
	require.NoError(t, err)
	assert.Equal(t, "users", repo.Name())
	assert.NotNil(t, repo.Collection())
}

func TestNewRepositoryRejectsBadProjectionAtConstruction(t *testing.T) {
	db := testDatabase(t)

	_, err := NewRepositoryWithProjection[userDoc, *userDoc, userView](db, "users", userMapper, types.Projection{"$where": 1})
	assert.Error(t, err)

	_, err = NewRepositoryWithProjection[userDoc, *userDoc, userView](db, "users", userMapper, types.Projection{"email": 1, "name": 1})
	assert.NoError(t, err)
}

func TestBuildFilterExcludesSoftDeleted(t *testing.T) {
	r := newUserRepo(t)

	filter := r.buildFilter(types.FilterSpec{"email": "a@b.c"})
	assert.Equal(t, bson.M{"email": "a@b.c", types.FieldDeletedAt: nil}, filter)
}

func TestBuildFilterDeletedAtOverride(t *testing.T) {
	r := newUserRepo(t)

	// Naming deletedAt in the filter suppresses the implicit exclusion.
	filter := r.buildFilter(types.FilterSpec{types.FieldDeletedAt: types.Neq(nil)})
	assert.Equal(t, bson.M{types.FieldDeletedAt: bson.M{"$ne": nil}}, filter)

	// A bare nil entry also counts as an override: the key is present, so
	// the caller asked for both active and deleted documents.
	filter = r.buildFilter(types.FilterSpec{types.FieldDeletedAt: nil, "email": "a@b.c"})
	assert.Equal(t, bson.M{"email": "a@b.c"}, filter)
}

func TestParseIDInvalid(t *testing.T) {
	r := newUserRepo(t)

	_, err := r.parseID("findById", "not-a-hex-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidID)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "users", opErr.Collection)
	assert.Equal(t, "findById", opErr.Op)
	assert.Equal(t, "not-a-hex-id", opErr.ID)
}

func TestFindByIDInvalidID(t *testing.T) {
	r := newUserRepo(t)
	_, err := r.FindByID(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestMapperFailureCarriesDocumentID(t *testing.T) {
	db := testDatabase(t)
	boom := errors.New("shape mismatch")
	r, err := newBaseRepository[userDoc, *userDoc, userView](db, "users", func(doc *userDoc) (userView, error) {
		return userView{}, boom
	}, nil)
	require.NoError(t, err)

	doc := &userDoc{Email: "a@b.c"}
	doc.SetID(bson.NewObjectID())
	_, err = r.mapDoc("findOne", doc)
	require.Error(t, err)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, doc.HexID(), opErr.ID)
	assert.ErrorIs(t, err, boom)
}

func TestOperationErrorFormatting(t *testing.T) {
	err := &OperationError{Collection: "users", Op: "findById", ID: "abc", Err: errors.New("boom")}
	assert.Contains(t, err.Error(), "users.findById")
	assert.Contains(t, err.Error(), "id=abc")

	bare := &OperationError{Collection: "users", Op: "count", Err: errors.New("boom")}
	assert.NotContains(t, bare.Error(), "id=")
}

func TestStripProtected(t *testing.T) {
	spec := types.UpdateSpec{
		types.FieldID:        "evil",
		types.FieldCreatedAt: "evil",
		types.FieldUpdatedAt: "evil",
		"name":               "ada",
		"email":              nil,
	}
	cleaned := stripProtected(spec)
	assert.Equal(t, types.UpdateSpec{"name": "ada", "email": nil}, cleaned)

	// The original spec is left untouched.
	assert.Len(t, spec, 5)
}

func TestDedupeIDs(t *testing.T) {
	ids := dedupeIDs([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Empty(t, dedupeIDs(nil))
}

func TestDedupeObjectIDs(t *testing.T) {
	a := bson.NewObjectID()
	b := bson.NewObjectID()
	oids := dedupeObjectIDs([]string{a.Hex(), b.Hex(), a.Hex(), "not-an-id"})
	assert.Equal(t, []bson.ObjectID{a, b}, oids)
}

func TestIDFilterTargetsActiveDocument(t *testing.T) {
	r := newUserRepo(t)
	oid := bson.NewObjectID()
	assert.Equal(t, bson.M{types.FieldID: oid, types.FieldDeletedAt: nil}, r.idFilter(oid))
}

func TestCreateManyPartialFailure(t *testing.T) {
	r := newUserRepo(t)
	docs := []*userDoc{
		{Email: "a@x.io", Name: "a"},
		{Email: "b@x.io", Name: "b"},
		{Email: "c@x.io", Name: "c"},
	}
	for _, d := range docs {
		d.SetID(bson.NewObjectID())
	}

	insertErr := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "E11000 duplicate key error"}},
		},
	}
	result, err := r.assembleBulkCreate(docs, insertErr)
	require.NoError(t, err)

	assert.Equal(t, 2, result.InsertedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Contains(t, result.Errors[0].Err, "duplicate key")

	// The failed document never maps to a view; the others keep input order.
	require.Len(t, result.Created, 2)
	assert.Equal(t, "a@x.io", result.Created[0].Email)
	assert.Equal(t, "c@x.io", result.Created[1].Email)
}

func TestCreateManyFullSuccessAndTotalFailure(t *testing.T) {
	r := newUserRepo(t)
	docs := []*userDoc{{Email: "a@x.io"}, {Email: "b@x.io"}}
	for _, d := range docs {
		d.SetID(bson.NewObjectID())
	}

	result, err := r.assembleBulkCreate(docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.InsertedCount)
	assert.Empty(t, result.Errors)

	// Anything other than a bulk write exception is a total failure and
	// surfaces as an error, not a partial result.
	_, err = r.assembleBulkCreate(docs, errors.New("socket closed"))
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "createMany", opErr.Op)
}

func TestSplitRequestedIDs(t *testing.T) {
	a := bson.NewObjectID()
	b := bson.NewObjectID()
	oids, hexByOID, notFound := splitRequestedIDs([]string{a.Hex(), "bogus", b.Hex(), a.Hex()})

	assert.Equal(t, []bson.ObjectID{a, b}, oids)
	assert.Equal(t, []string{"bogus"}, notFound)
	assert.Equal(t, a.Hex(), hexByOID[a])
	assert.Equal(t, b.Hex(), hexByOID[b])
}

func TestReconcileExistingExactNotFound(t *testing.T) {
	a := bson.NewObjectID()
	b := bson.NewObjectID()
	c := bson.NewObjectID()
	oids, hexByOID, notFound := splitRequestedIDs([]string{a.Hex(), "bogus", b.Hex(), c.Hex()})

	// The pre-query saw only a and c; b joins the malformed id in notFound.
	existing, notFound := reconcileExisting(oids, hexByOID, []bson.ObjectID{a, c}, notFound)
	assert.Equal(t, []bson.ObjectID{a, c}, existing)
	assert.Equal(t, []string{"bogus", b.Hex()}, notFound)
}

func TestReconcileExistingAllMissing(t *testing.T) {
	a := bson.NewObjectID()
	oids, hexByOID, notFound := splitRequestedIDs([]string{a.Hex()})

	existing, notFound := reconcileExisting(oids, hexByOID, nil, notFound)
	assert.Empty(t, existing)
	assert.Equal(t, []string{a.Hex()}, notFound)
}
