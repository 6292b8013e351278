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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestBuildFilterEquality(t *testing.T) {
	filter := BuildFilter(FilterSpec{"name": "ada", "age": 42})
	assert.Equal(t, bson.M{"name": "ada", "age": 42}, filter)
}

func TestBuildFilterSkipsBareNil(t *testing.T) {
	filter := BuildFilter(FilterSpec{"name": "ada", "email": nil})
	assert.Equal(t, bson.M{"name": "ada"}, filter)
}

func TestBuildFilterExplicitNull(t *testing.T) {
	// Eq(nil) is the opt-in for matching a stored null, which a bare nil
	// spec value never does.
	filter := BuildFilter(FilterSpec{"email": Eq(nil)})
	assert.Equal(t, bson.M{"email": nil}, filter)
}

func TestBuildFilterComparisons(t *testing.T) {
	filter := BuildFilter(FilterSpec{
		"a": Neq("x"),
		"b": Gt(1),
		"c": Gte(2),
		"d": Lt(3),
		"e": Lte(4),
	})
	assert.Equal(t, bson.M{"$ne": "x"}, filter["a"])
	assert.Equal(t, bson.M{"$gt": 1}, filter["b"])
	assert.Equal(t, bson.M{"$gte": 2}, filter["c"])
	assert.Equal(t, bson.M{"$lt": 3}, filter["d"])
	assert.Equal(t, bson.M{"$lte": 4}, filter["e"])
}

func TestBuildFilterMembership(t *testing.T) {
	filter := BuildFilter(FilterSpec{
		"status": In("active", "pending"),
		"role":   Nin("banned"),
	})
	assert.Equal(t, bson.M{"$in": []any{"active", "pending"}}, filter["status"])
	assert.Equal(t, bson.M{"$nin": []any{"banned"}}, filter["role"])
}

func TestBuildFilterEmptyIn(t *testing.T) {
	filter := BuildFilter(FilterSpec{"status": In()})
	assert.Equal(t, bson.M{"$in": []any{}}, filter["status"])
}

func TestBuildFilterPatterns(t *testing.T) {
	filter := BuildFilter(FilterSpec{
		"name":  Contains("ada"),
		"email": StartsWith("a"),
		"slug":  EndsWith("co"),
	})
	assert.Equal(t, bson.M{"$regex": "ada", "$options": "i"}, filter["name"])
	assert.Equal(t, bson.M{"$regex": "^a", "$options": "i"}, filter["email"])
	assert.Equal(t, bson.M{"$regex": "co$", "$options": "i"}, filter["slug"])
}

func TestBuildFilterPatternEscapesMetacharacters(t *testing.T) {
	filter := BuildFilter(FilterSpec{"email": Contains("a.b+c@x.io")})
	assert.Equal(t, bson.M{"$regex": `a\.b\+c@x\.io`, "$options": "i"}, filter["email"])

	filter = BuildFilter(FilterSpec{"name": StartsWith(".*")})
	assert.Equal(t, bson.M{"$regex": `^\.\*`, "$options": "i"}, filter["name"])
}

func TestBuildFilterEmptySpec(t *testing.T) {
	assert.Equal(t, bson.M{}, BuildFilter(nil))
	assert.Equal(t, bson.M{}, BuildFilter(FilterSpec{}))
}
