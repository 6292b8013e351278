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

// UpdateSpec is a partial, single-level update: present keys are written,
// absent keys are left untouched. A present key with a nil value clears the
// field to an explicit null, distinguishing "clear" from "leave alone".
type UpdateSpec map[string]any

// BuildUpdateSet translates an UpdateSpec into a flat $set replacement
// document that always stamps the update timestamp. The identifier and
// creation timestamp can never be rewritten through an update spec.
func BuildUpdateSet(spec UpdateSpec) bson.M {
	return BuildUpdateSetAt(spec, time.Now().UTC())
}

// BuildUpdateSetAt is BuildUpdateSet with an explicit clock, used by tests.
func BuildUpdateSetAt(spec UpdateSpec, now time.Time) bson.M {
	set := bson.M{}
	for field, value := range spec {
		if field == FieldID || field == FieldCreatedAt || field == FieldUpdatedAt {
			continue
		}
		set[field] = value
	}
	set[FieldUpdatedAt] = now
	return bson.M{"$set": set}
}
