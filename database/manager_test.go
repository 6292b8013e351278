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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newOfflineClient builds a driver client without touching the network; the
// driver dials lazily, and these tests never issue an operation.
func newOfflineClient(t *testing.T) *mongo.Client {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func newTestManager(t *testing.T, dial dialFunc, ping pingFunc) *defaultDatabaseManager {
	t.Helper()
	cfg := DefaultConnectionConfig()
	cfg.URI = "mongodb://127.0.0.1:1/testdb"
	cfg.Database = "testdb"
	dm := NewDatabaseManager(cfg).(*defaultDatabaseManager)
	if dial != nil {
		dm.dial = dial
	}
	if ping != nil {
		dm.ping = ping
	}
	return dm
}

func TestConnectRequiresURI(t *testing.T) {
	dm := NewDatabaseManager(&ConnectionConfig{}).(*defaultDatabaseManager)
	assert.ErrorIs(t, dm.Connect(context.Background()), ErrMissingURI)
}

func TestConnectPublishesHandle(t *testing.T) {
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error { return nil },
	)

	require.NoError(t, dm.Connect(context.Background()))
	assert.True(t, dm.IsConnected())
	assert.NotNil(t, dm.Client())
	assert.NotNil(t, dm.Database())
	assert.Equal(t, "testdb", dm.Database().Name())
	assert.NotNil(t, dm.Collection(CollectionUsers))
}

func TestConnectIsIdempotent(t *testing.T) {
	var dials int32
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) {
			atomic.AddInt32(&dials, 1)
			return client, nil
		},
		func(ctx context.Context, c *mongo.Client) error { return nil },
	)

	require.NoError(t, dm.Connect(context.Background()))
	require.NoError(t, dm.Connect(context.Background()))
	require.NoError(t, dm.Connect(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
}

func TestConnectSingleFlight(t *testing.T) {
	var dials int32
	gate := make(chan struct{})
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) {
			atomic.AddInt32(&dials, 1)
			<-gate
			return client, nil
		},
		func(ctx context.Context, c *mongo.Client) error { return nil },
	)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = dm.Connect(context.Background())
		}(i)
	}

	// Let every caller reach the connect path before releasing the dial.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
	assert.True(t, dm.IsConnected())
}

func TestConnectFailureClearsStateAndRetries(t *testing.T) {
	var dials int32
	client := newOfflineClient(t)
	dialErr := errors.New("no route to host")
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) {
			if atomic.AddInt32(&dials, 1) == 1 {
				return nil, dialErr
			}
			return client, nil
		},
		func(ctx context.Context, c *mongo.Client) error { return nil },
	)

	err := dm.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)
	assert.False(t, dm.IsConnected())
	assert.Nil(t, dm.Client())

	// The failed attempt left no partial state behind; a retry succeeds.
	require.NoError(t, dm.Connect(context.Background()))
	assert.True(t, dm.IsConnected())
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
}

func TestConnectPingFailureTearsDown(t *testing.T) {
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error { return errors.New("ping failed") },
	)

	err := dm.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")
	assert.False(t, dm.IsConnected())
}

func TestConnectWaiterHonorsCancellation(t *testing.T) {
	gate := make(chan struct{})
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) {
			<-gate
			return client, nil
		},
		func(ctx context.Context, c *mongo.Client) error { return nil },
	)

	go func() { _ = dm.Connect(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dm.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(gate)
}

func TestCloseCancelsInflightAttempt(t *testing.T) {
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)

	done := make(chan error, 1)
	go func() { done <- dm.Connect(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, dm.Close(context.Background()))

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not observe the cancelled attempt")
	}
	assert.False(t, dm.IsConnected())
}

func TestCloseDiscardsHandleEstablishedMidTeardown(t *testing.T) {
	client := newOfflineClient(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var pings int32
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error {
			if atomic.AddInt32(&pings, 1) > 1 {
				return nil
			}
			// Ignore cancellation so the first attempt succeeds even though
			// Close already ran, exercising the publish-after-teardown window.
			close(entered)
			<-release
			return nil
		},
	)

	done := make(chan error, 1)
	go func() { done <- dm.Connect(context.Background()) }()
	<-entered

	require.NoError(t, dm.Close(context.Background()))
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return after teardown")
	}
	assert.False(t, dm.IsConnected())
	assert.Nil(t, dm.Client())
	assert.Nil(t, dm.Database())

	// The manager is still usable; a fresh attempt connects cleanly.
	require.NoError(t, dm.Connect(context.Background()))
	assert.True(t, dm.IsConnected())
}

func TestCloseWithoutConnection(t *testing.T) {
	dm := newTestManager(t, nil, nil)
	assert.NoError(t, dm.Close(context.Background()))
}

func TestPingBeforeConnect(t *testing.T) {
	dm := newTestManager(t, nil, nil)
	assert.ErrorIs(t, dm.Ping(context.Background()), ErrNotConnected)
}

func TestHealthCheckBeforeConnect(t *testing.T) {
	dm := newTestManager(t, nil, nil)
	status := dm.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Connected)
	assert.Equal(t, ErrNotConnected.Error(), status.LastError)
}

func TestHealthCheckConnected(t *testing.T) {
	client := newOfflineClient(t)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error { return nil },
	)
	require.NoError(t, dm.Connect(context.Background()))

	status := dm.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Empty(t, status.LastError)
}

func TestHealthCheckUsesConfiguredTimeout(t *testing.T) {
	client := newOfflineClient(t)
	var deadline time.Time
	var hasDeadline bool
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error {
			deadline, hasDeadline = ctx.Deadline()
			return nil
		},
	)
	dm.config.ServerSelectionTimeout = 250 * time.Millisecond
	require.NoError(t, dm.Connect(context.Background()))

	start := time.Now()
	status := dm.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
	require.True(t, hasDeadline)
	assert.LessOrEqual(t, deadline.Sub(start), 300*time.Millisecond)
}

func TestHealthCheckPingFailure(t *testing.T) {
	client := newOfflineClient(t)
	healthy := int32(1)
	dm := newTestManager(t,
		func(cfg *ConnectionConfig) (*mongo.Client, error) { return client, nil },
		func(ctx context.Context, c *mongo.Client) error {
			if atomic.LoadInt32(&healthy) == 1 {
				return nil
			}
			return errors.New("server went away")
		},
	)
	require.NoError(t, dm.Connect(context.Background()))

	atomic.StoreInt32(&healthy, 0)
	status := dm.HealthCheck(context.Background())
	assert.True(t, status.Connected)
	assert.False(t, status.Healthy)
	assert.Contains(t, status.LastError, "server went away")
}
