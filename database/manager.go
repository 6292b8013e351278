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
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

type dialFunc func(cfg *ConnectionConfig) (*mongo.Client, error)

type pingFunc func(ctx context.Context, client *mongo.Client) error

// connectAttempt is the shared state of one in-flight connection attempt.
// Every concurrent Connect caller waits on the same attempt instead of
// opening a duplicate connection.
type connectAttempt struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error

	// aborted is set by Close under the manager mutex; the connecting
	// goroutine checks it before publishing so a handle established in the
	// window between establish returning and the publish lock can never
	// outlive a completed teardown.
	aborted bool
}

type defaultDatabaseManager struct {
	config *ConnectionConfig
	logger Logger

	mu        sync.Mutex
	client    *mongo.Client
	db        *mongo.Database
	inflight  *connectAttempt
	lastError error

	// Test seams; never reassigned after construction in production use.
	dial dialFunc
	ping pingFunc
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by the
// MongoDB driver. If config is nil, a sensible default configuration is
// used. The manager is constructed once at process start and handed to
// consumers by dependency injection; the published handle is safe for
// unbounded concurrent use.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if config.Database == "" {
		config.Database = DatabaseNameFromURI(config.URI, DefaultDatabaseName)
	}
	dm := &defaultDatabaseManager{config: config}
	dm.dial = dm.dialClient
	dm.ping = func(ctx context.Context, client *mongo.Client) error {
		return client.Ping(ctx, readpref.Primary())
	}
	return dm
}

// Connect establishes the shared connection. The call is idempotent: a live
// handle returns immediately, a concurrent attempt is awaited rather than
// duplicated, and a failed attempt clears all cached state so the next call
// retries from scratch.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	if dm.config.URI == "" {
		return ErrMissingURI
	}

	dm.mu.Lock()
	if dm.client != nil {
		dm.mu.Unlock()
		return nil
	}
	if att := dm.inflight; att != nil {
		dm.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// The attempt context is detached from the caller so that one caller's
	// cancellation cannot fail every waiter; Close cancels it explicitly.
	attCtx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectTimeout)
	att := &connectAttempt{done: make(chan struct{}), cancel: cancel}
	dm.inflight = att
	dm.mu.Unlock()

	client, err := dm.establish(attCtx)

	dm.mu.Lock()
	aborted := att.aborted
	if err == nil && aborted {
		err = ErrConnectAborted
	}
	if err == nil {
		dm.client = client
		dm.db = client.Database(dm.config.Database)
		dm.lastError = nil
	} else {
		dm.client = nil
		dm.db = nil
		dm.lastError = err
	}
	if dm.inflight == att {
		dm.inflight = nil
	}
	dm.mu.Unlock()

	// An aborted attempt owns its freshly dialed client; nothing else will
	// ever disconnect it.
	if aborted && client != nil {
		_ = client.Disconnect(context.Background())
	}

	// Release the guard in every path so no waiter can deadlock.
	att.err = err
	close(att.done)
	cancel()

	if err != nil {
		if dm.logger != nil {
			dm.logger.Error("Database connection failed", "error", err)
		}
		return err
	}
	if dm.logger != nil {
		dm.logger.Info("Database connected successfully", "database", dm.config.Database)
	}
	return nil
}

// establish dials the server and validates liveness with a ping before the
// handle may be published. A socket that opens but cannot serve queries is
// torn down and reported as a failure.
func (dm *defaultDatabaseManager) establish(ctx context.Context) (*mongo.Client, error) {
	client, err := dm.dial(dm.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ServerSelectionTimeout)
	defer cancel()
	if err := dm.ping(pingCtx, client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return client, nil
}

func (dm *defaultDatabaseManager) dialClient(cfg *ConnectionConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetTimeout(cfg.SocketTimeout).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryReads(cfg.RetryReads).
		SetRetryWrites(cfg.RetryWrites).
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Majority())

	if len(cfg.Compressors) > 0 {
		opts.SetCompressors(cfg.Compressors)
	}
	if cfg.EnableCommandLog || cfg.SlowOpThreshold > 0 {
		opts.SetMonitor(newCommandMonitor(cfg.SlowOpThreshold, dm.logger, cfg.EnableCommandLog))
	}

	return mongo.Connect(opts)
}

// Close marks any in-flight connection attempt aborted and cancels it, so a
// handle established mid-teardown is discarded instead of published, then
// releases the current handle. Disconnect errors are logged and tolerated;
// state is cleared regardless.
func (dm *defaultDatabaseManager) Close(ctx context.Context) error {
	dm.mu.Lock()
	if att := dm.inflight; att != nil {
		att.aborted = true
		att.cancel()
		dm.inflight = nil
	}
	client := dm.client
	dm.client = nil
	dm.db = nil
	dm.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Disconnect(ctx); err != nil {
		if dm.logger != nil {
			dm.logger.Error("Failed to close database connection", "error", err)
		}
		return nil
	}
	if dm.logger != nil {
		dm.logger.Info("Database connection closed")
	}
	return nil
}

// Ping issues an active liveness check against the current handle.
func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.Lock()
	client := dm.client
	dm.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}
	return dm.ping(ctx, client)
}

// IsConnected reflects cached state only; it never touches the network.
func (dm *defaultDatabaseManager) IsConnected() bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.client != nil
}

// HealthCheck pings the current handle and reports a tagged status. It
// never panics and never returns an error value.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.IsConnected(),
	}
	if !status.Connected {
		status.LastError = ErrNotConnected.Error()
		return status
	}

	timeout := dm.config.ServerSelectionTimeout
	if timeout <= 0 {
		timeout = time.Second * 5
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := dm.Ping(pingCtx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.Healthy = false
		status.LastError = err.Error()
		dm.mu.Lock()
		dm.lastError = err
		dm.mu.Unlock()
		return status
	}
	status.Healthy = true
	return status
}

func (dm *defaultDatabaseManager) Client() *mongo.Client {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.client
}

func (dm *defaultDatabaseManager) Database() *mongo.Database {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.db
}

// Collection returns a raw collection handle from the live database.
func (dm *defaultDatabaseManager) Collection(name string) *mongo.Collection {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.db == nil {
		return nil
	}
	return dm.db.Collection(name)
}

// Config returns the connection configuration the manager was built with.
func (dm *defaultDatabaseManager) Config() *ConnectionConfig {
	return dm.config
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
