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
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Sentinel errors for connection lifecycle failures.
var (
	// ErrNotConnected indicates an operation was attempted before a
	// connection was established.
	ErrNotConnected = errors.New("database not connected")

	// ErrMissingURI indicates the connection string is absent from the
	// configuration. Fatal, never retried.
	ErrMissingURI = errors.New("database connection URI is required")

	// ErrConnectAborted indicates Close tore the manager down while a
	// connection attempt was still in flight. The next Connect retries
	// from scratch.
	ErrConnectAborted = errors.New("database connection attempt aborted by close")
)

// StoreError is the closed set of tagged variants the rest of the kernel
// matches on instead of sniffing driver error shapes.
type StoreError int

const (
	UnclassifiedErr StoreError = iota
	DuplicateKeyErr
	WriteConflictErr
	TransientTxErr
	TimeoutErr
)

const writeConflictCode = 112

// Classify maps a driver error onto a StoreError variant. It is the single
// place that inspects driver error shapes.
func Classify(err error) StoreError {
	if err == nil {
		return UnclassifiedErr
	}
	if mongo.IsDuplicateKeyError(err) {
		return DuplicateKeyErr
	}
	if mongo.IsTimeout(err) {
		return TimeoutErr
	}

	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		if srvErr.HasErrorLabel("TransientTransactionError") {
			return TransientTxErr
		}
		if srvErr.HasErrorCode(writeConflictCode) {
			return WriteConflictErr
		}
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "write conflict") {
		return WriteConflictErr
	}
	if strings.Contains(s, "duplicate key") {
		return DuplicateKeyErr
	}
	return UnclassifiedErr
}

// IsDuplicateKey reports whether err is a unique-index violation.
func IsDuplicateKey(err error) bool { return Classify(err) == DuplicateKeyErr }

// IsWriteConflict reports whether err is a storage-level write conflict.
func IsWriteConflict(err error) bool { return Classify(err) == WriteConflictErr }

// IsTransientTransaction reports whether err carries the driver's transient
// transaction label and the whole transaction body may be retried.
func IsTransientTransaction(err error) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}
