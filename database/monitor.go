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
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/event"
)

// commandObserver logs slow driver commands and, in verbose mode, every
// command outcome. Start times are tracked per request id because the
// driver invokes the started/finished callbacks on arbitrary goroutines.
type commandObserver struct {
	slowTime time.Duration
	logger   Logger
	verbose  bool

	mu      sync.Mutex
	started map[int64]startedCommand
}

type startedCommand struct {
	name string
	at   time.Time
}

func newCommandMonitor(slowTime time.Duration, logger Logger, verbose bool) *event.CommandMonitor {
	obs := &commandObserver{
		slowTime: slowTime,
		logger:   logger,
		verbose:  verbose,
		started:  make(map[int64]startedCommand),
	}
	return &event.CommandMonitor{
		Started:   obs.commandStarted,
		Succeeded: obs.commandSucceeded,
		Failed:    obs.commandFailed,
	}
}

func (o *commandObserver) commandStarted(_ context.Context, evt *event.CommandStartedEvent) {
	o.mu.Lock()
	o.started[evt.RequestID] = startedCommand{name: evt.CommandName, at: time.Now()}
	o.mu.Unlock()
}

func (o *commandObserver) commandSucceeded(_ context.Context, evt *event.CommandSucceededEvent) {
	cmd, ok := o.take(evt.RequestID)
	if !ok {
		return
	}
	duration := time.Since(cmd.at)
	if o.logger == nil {
		return
	}
	if o.slowTime > 0 && duration > o.slowTime {
		o.logger.Warn("Database slow operation detected",
			"command", cmd.name,
			"duration", duration,
			"slow_threshold", o.slowTime,
		)
		return
	}
	if o.verbose {
		o.logger.Debug("Database command succeeded", "command", cmd.name, "duration", duration)
	}
}

func (o *commandObserver) commandFailed(_ context.Context, evt *event.CommandFailedEvent) {
	cmd, ok := o.take(evt.RequestID)
	if !ok || o.logger == nil {
		return
	}
	o.logger.Debug("Database command failed",
		"command", cmd.name,
		"duration", time.Since(cmd.at),
		"error", evt.Failure,
	)
}

func (o *commandObserver) take(requestID int64) (startedCommand, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cmd, ok := o.started[requestID]
	if ok {
		delete(o.started, requestID)
	}
	return cmd, ok
}
