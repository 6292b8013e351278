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

// BulkError records the failure of a single item within a bulk operation,
// keyed by the item's position in the caller's input slice.
type BulkError struct {
	Index int    `json:"index"`
	Err   string `json:"error"`
}

// BulkResult aggregates the per-item outcomes of a bulk insert. Partial
// failure is reported here, never raised; only total failure of the
// underlying call surfaces as an error.
type BulkResult[V any] struct {
	Created       []V         `json:"created"`
	InsertedCount int         `json:"insertedCount"`
	Errors        []BulkError `json:"errors,omitempty"`
}

// BulkDeleteResult reports a bulk soft- or hard-delete: how many documents
// were mutated plus the exact set of requested ids that did not exist. The
// NotFound list comes from a pre-query, not a count delta, so it is precise
// but advisory under concurrent deletes.
type BulkDeleteResult struct {
	Deleted  int64    `json:"deleted"`
	NotFound []string `json:"notFound,omitempty"`
}
