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

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, UnclassifiedErr, Classify(nil))
}

func TestClassifyDuplicateKey(t *testing.T) {
	err := mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}},
	}
	assert.Equal(t, DuplicateKeyErr, Classify(err))
	assert.True(t, IsDuplicateKey(err))
}

func TestClassifyWriteConflict(t *testing.T) {
	err := mongo.CommandError{Code: writeConflictCode, Message: "WriteConflict"}
	assert.Equal(t, WriteConflictErr, Classify(err))
	assert.True(t, IsWriteConflict(err))
}

func TestClassifyTransientTransaction(t *testing.T) {
	err := mongo.CommandError{
		Code:    251,
		Message: "NoSuchTransaction",
		Labels:  []string{"TransientTransactionError"},
	}
	assert.Equal(t, TransientTxErr, Classify(err))
	assert.True(t, IsTransientTransaction(err))
}

func TestClassifyWrappedServerError(t *testing.T) {
	inner := mongo.CommandError{Code: writeConflictCode, Message: "WriteConflict"}
	wrapped := fmt.Errorf("running migration: %w", inner)
	assert.Equal(t, WriteConflictErr, Classify(wrapped))
}

func TestClassifyStringFallback(t *testing.T) {
	assert.Equal(t, WriteConflictErr, Classify(errors.New("storage reported a write conflict")))
	assert.Equal(t, DuplicateKeyErr, Classify(errors.New("insert failed: duplicate key")))
}

func TestClassifyUnclassified(t *testing.T) {
	err := errors.New("connection reset by peer")
	assert.Equal(t, UnclassifiedErr, Classify(err))
	assert.False(t, IsDuplicateKey(err))
	assert.False(t, IsWriteConflict(err))
	assert.False(t, IsTransientTransaction(err))
}
