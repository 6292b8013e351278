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
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// WithTransaction runs fn inside a multi-document transaction when the
// deployment supports them. When transactions are disabled, fn is invoked
// with the plain context and no session; callers must pass the received
// context into every read and write so they are correct either way.
//
// On success the transaction commits; on any error it aborts; the session
// is always ended.
func (dm *defaultDatabaseManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !dm.config.EnableTransactions {
		return fn(ctx)
	}

	client := dm.Client()
	if client == nil {
		return ErrNotConnected
	}

	sess, err := client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	sessCtx := mongo.NewSessionContext(ctx, sess)
	if err := sess.StartTransaction(); err != nil {
		return err
	}
	if err := fn(sessCtx); err != nil {
		if abortErr := sess.AbortTransaction(ctx); abortErr != nil && dm.logger != nil {
			dm.logger.Error("Failed to abort transaction", "error", abortErr)
		}
		return err
	}
	return sess.CommitTransaction(ctx)
}

// WithRetryableTransaction re-executes the whole transaction body on
// driver-classified transient transaction errors, bounded by maxRetries
// additional attempts. Non-transient errors surface immediately.
func (dm *defaultDatabaseManager) WithRetryableTransaction(ctx context.Context, fn func(ctx context.Context) error, maxRetries int) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = dm.WithTransaction(ctx, fn)
		if err == nil || !IsTransientTransaction(err) {
			return err
		}
		if dm.logger != nil {
			dm.logger.Warn("Retrying transient transaction failure",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"error", err,
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
