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
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Canonical document field names. Filters and updates built by this package
// reference these constants rather than literal strings.
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedAt = "deletedAt"
)

// Entity is the contract every stored document type satisfies, usually by
// embedding Base. The repository layer uses it to stamp timestamps, attach
// generated ids, and evaluate soft-delete state.
type Entity interface {
	GetID() bson.ObjectID
	SetID(id bson.ObjectID)
	StampCreated(now time.Time)
	StampUpdated(now time.Time)
	GetDeletedAt() *time.Time
	SetDeletedAt(t *time.Time)
}

// Base holds the identifier and lifecycle timestamps common to all stored
// documents. A nil DeletedAt means the document is active.
type Base struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time     `bson:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt,omitempty" json:"updatedAt"`
	DeletedAt *time.Time    `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
}

func (b *Base) GetID() bson.ObjectID   { return b.ID }
func (b *Base) SetID(id bson.ObjectID) { b.ID = id }

// StampCreated sets both creation and update timestamps.
func (b *Base) StampCreated(now time.Time) {
	b.CreatedAt = now
	b.UpdatedAt = now
}

func (b *Base) StampUpdated(now time.Time) { b.UpdatedAt = now }

func (b *Base) GetDeletedAt() *time.Time { return b.DeletedAt }

func (b *Base) SetDeletedAt(t *time.Time) { b.DeletedAt = t }

// HexID returns the string form of the document id as exposed on views.
func (b *Base) HexID() string {
	if b.ID.IsZero() {
		return ""
	}
	return b.ID.Hex()
}
