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
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MigrationFunc is a single migration step. Migrations write through raw
// collection handles on db; they run before typed repositories exist.
type MigrationFunc func(ctx context.Context, db *mongo.Database) error

// MigrationItem describes one immutable, uniquely identified migration.
// Up is required; Down is optional and its absence makes the migration
// irreversible.
type MigrationItem struct {
	ID   string
	Up   MigrationFunc
	Down MigrationFunc
}

// Direction selects whether migrations are applied or reverted.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// RunOptions filter and shape a migration run.
type RunOptions struct {
	// Direction defaults to up.
	Direction Direction
	// Only restricts the run to the named ids.
	Only []string
	// Target is an inclusive cut-off id: up stops after it, down stops
	// before ids below it.
	Target string
	// DryRun reports what would happen without mutating anything.
	DryRun bool
	// Force re-applies already-applied migrations (up only).
	Force bool
}

// MigrationFailure names the migration that stopped the run and why.
type MigrationFailure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// RunResult reports exactly which ids were applied, skipped, and failed so
// a caller can resume after a fail-fast stop.
type RunResult struct {
	Applied []string           `json:"applied"`
	Skipped []string           `json:"skipped"`
	Failed  []MigrationFailure `json:"failed,omitempty"`
}

// HasFailures reports whether the run stopped on a failed migration.
func (r *RunResult) HasFailures() bool { return len(r.Failed) > 0 }

// MigrationLogEntry is one record of the append-mostly history collection,
// keyed by migration id. Entries are written on up and deleted only on
// explicit rollback.
type MigrationLogEntry struct {
	ID          string    `bson:"_id" json:"id"`
	AppliedAt   time.Time `bson:"appliedAt" json:"appliedAt"`
	DurationMs  int64     `bson:"durationMs" json:"durationMs"`
	Environment string    `bson:"environment" json:"environment"`
	Hostname    string    `bson:"hostname" json:"hostname"`
	Notes       string    `bson:"notes,omitempty" json:"notes,omitempty"`
}

// MigrationHistory abstracts the history collection so the runner can be
// exercised without a live deployment.
type MigrationHistory interface {
	Applied(ctx context.Context) (map[string]MigrationLogEntry, error)
	Record(ctx context.Context, entry MigrationLogEntry) error
	Remove(ctx context.Context, id string) error
}

type mongoMigrationHistory struct {
	coll *mongo.Collection
}

// NewMigrationHistory returns the history log stored in the migrations
// collection of db.
func NewMigrationHistory(db *mongo.Database) MigrationHistory {
	return &mongoMigrationHistory{coll: db.Collection(CollectionMigrations)}
}

func (h *mongoMigrationHistory) Applied(ctx context.Context) (map[string]MigrationLogEntry, error) {
	cursor, err := h.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to load migration history: %w", err)
	}
	var entries []MigrationLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode migration history: %w", err)
	}
	applied := make(map[string]MigrationLogEntry, len(entries))
	for _, e := range entries {
		applied[e.ID] = e
	}
	return applied, nil
}

func (h *mongoMigrationHistory) Record(ctx context.Context, entry MigrationLogEntry) error {
	_, err := h.coll.InsertOne(ctx, entry)
	return err
}

func (h *mongoMigrationHistory) Remove(ctx context.Context, id string) error {
	_, err := h.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// migrationIDPattern is the required NNN_description id form.
var migrationIDPattern = regexp.MustCompile(`^\d{3}_[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// TransactionRunner optionally colocates a migration's side effects and its
// history-log write inside one transaction. Without it the two writes are
// separate calls: a crash between them leaves the migration half-applied
// and unrecorded, so migrations must be written idempotently.
type TransactionRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// MigrationManager orders, executes, and records schema/data migrations.
type MigrationManager struct {
	db          *mongo.Database
	history     MigrationHistory
	logger      Logger
	environment string
	tx          TransactionRunner
}

// NewMigrationManager constructs a migration manager writing history into
// the migrations collection of db. The default environment is "development".
func NewMigrationManager(db *mongo.Database, logger Logger) *MigrationManager {
	mm := &MigrationManager{
		db:          db,
		logger:      logger,
		environment: "development",
	}
	// A nil db means the history store must be injected via SetHistory.
	if db != nil {
		mm.history = NewMigrationHistory(db)
	}
	return mm
}

// SetEnvironment sets the environment recorded on history entries.
func (mm *MigrationManager) SetEnvironment(env string) {
	if env != "" {
		mm.environment = env
	}
}

// SetHistory replaces the history store; tests use this to run the manager
// against a fake.
func (mm *MigrationManager) SetHistory(history MigrationHistory) {
	mm.history = history
}

// SetTransactionRunner makes the manager wrap each migration body and its
// history write in one unit of work, closing the consistency gap on
// deployments that support transactions.
func (mm *MigrationManager) SetTransactionRunner(tx TransactionRunner) {
	mm.tx = tx
}

// Run validates, orders, and executes the given migrations. The run stops
// on the first failure; migrations applied earlier in the same run are left
// in place. The returned result is populated even when err is non-nil.
func (mm *MigrationManager) Run(ctx context.Context, migrations []MigrationItem, opts RunOptions) (*RunResult, error) {
	result := &RunResult{Applied: []string{}, Skipped: []string{}}

	if err := validateMigrations(migrations); err != nil {
		return result, err
	}
	direction := opts.Direction
	if direction == "" {
		direction = DirectionUp
	}

	applied, err := mm.history.Applied(ctx)
	if err != nil {
		return result, err
	}

	selected := selectMigrations(migrations, opts, direction)
	runID := uuid.NewString()
	mm.logInfo("Migration run starting",
		"run_id", runID,
		"direction", string(direction),
		"count", len(selected),
		"dry_run", opts.DryRun,
	)

	for _, migration := range selected {
		_, isApplied := applied[migration.ID]

		var failure *MigrationFailure
		switch direction {
		case DirectionUp:
			if isApplied && !opts.Force {
				mm.logInfo("Migration skipped", "id", migration.ID, "reason", "already applied")
				result.Skipped = append(result.Skipped, migration.ID)
				continue
			}
			failure = mm.runUp(ctx, migration, runID, isApplied, opts.DryRun)
		case DirectionDown:
			if !isApplied {
				mm.logInfo("Migration skipped", "id", migration.ID, "reason", "not applied")
				result.Skipped = append(result.Skipped, migration.ID)
				continue
			}
			failure = mm.runDown(ctx, migration, opts.DryRun)
		default:
			return result, fmt.Errorf("unknown migration direction: %s", direction)
		}

		if failure != nil {
			result.Failed = append(result.Failed, *failure)
			mm.logError("Migration failed", "id", failure.ID, "error", failure.Err)
			return result, fmt.Errorf("migration %s failed: %s", failure.ID, failure.Err)
		}
		result.Applied = append(result.Applied, migration.ID)
	}

	mm.logInfo("Migration run completed",
		"run_id", runID,
		"applied", len(result.Applied),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (mm *MigrationManager) runUp(ctx context.Context, migration MigrationItem, runID string, reapply bool, dryRun bool) *MigrationFailure {
	if migration.Up == nil {
		return &MigrationFailure{ID: migration.ID, Err: "no up function"}
	}
	if dryRun {
		mm.logInfo("Migration would apply", "id", migration.ID)
		return nil
	}

	mm.logInfo("Migration starting", "id", migration.ID, "reapply", reapply)
	start := time.Now()

	body := func(ctx context.Context) error {
		if err := migration.Up(ctx, mm.db); err != nil {
			return err
		}
		if reapply {
			// force re-applies keep the original history entry
			return nil
		}
		hostname, _ := os.Hostname()
		return mm.history.Record(ctx, MigrationLogEntry{
			ID:          migration.ID,
			AppliedAt:   start,
			DurationMs:  time.Since(start).Milliseconds(),
			Environment: mm.environment,
			Hostname:    hostname,
			Notes:       "run=" + runID,
		})
	}

	if err := mm.runBody(ctx, body); err != nil {
		return &MigrationFailure{ID: migration.ID, Err: err.Error()}
	}
	mm.logInfo("Migration applied", "id", migration.ID, "duration", time.Since(start))
	return nil
}

func (mm *MigrationManager) runDown(ctx context.Context, migration MigrationItem, dryRun bool) *MigrationFailure {
	if migration.Down == nil {
		// Explicitly failed, never silently skipped: the history record
		// stays in place so the ambiguity is visible.
		return &MigrationFailure{ID: migration.ID, Err: "no down function"}
	}
	if dryRun {
		mm.logInfo("Migration would revert", "id", migration.ID)
		return nil
	}

	mm.logInfo("Migration reverting", "id", migration.ID)
	start := time.Now()

	body := func(ctx context.Context) error {
		if err := migration.Down(ctx, mm.db); err != nil {
			return err
		}
		return mm.history.Remove(ctx, migration.ID)
	}

	if err := mm.runBody(ctx, body); err != nil {
		return &MigrationFailure{ID: migration.ID, Err: err.Error()}
	}
	mm.logInfo("Migration reverted", "id", migration.ID, "duration", time.Since(start))
	return nil
}

func (mm *MigrationManager) runBody(ctx context.Context, body func(ctx context.Context) error) error {
	if mm.tx != nil {
		return mm.tx(ctx, body)
	}
	return body(ctx)
}

// validateMigrations checks id format and uniqueness before anything runs.
func validateMigrations(migrations []MigrationItem) error {
	seen := make(map[string]struct{}, len(migrations))
	var errs []error
	for _, m := range migrations {
		if !migrationIDPattern.MatchString(m.ID) {
			errs = append(errs, fmt.Errorf("migration id %q does not match NNN_description", m.ID))
			continue
		}
		if _, dup := seen[m.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate migration id %q", m.ID))
			continue
		}
		seen[m.ID] = struct{}{}
	}
	return errors.Join(errs...)
}

// selectMigrations applies Only/Target filtering and orders the batch:
// lexicographically ascending for up, reversed for down.
func selectMigrations(migrations []MigrationItem, opts RunOptions, direction Direction) []MigrationItem {
	var only map[string]struct{}
	if len(opts.Only) > 0 {
		only = make(map[string]struct{}, len(opts.Only))
		for _, id := range opts.Only {
			only[id] = struct{}{}
		}
	}

	selected := make([]MigrationItem, 0, len(migrations))
	for _, m := range migrations {
		if only != nil {
			if _, ok := only[m.ID]; !ok {
				continue
			}
		}
		if opts.Target != "" {
			if direction == DirectionUp && m.ID > opts.Target {
				continue
			}
			if direction == DirectionDown && m.ID < opts.Target {
				continue
			}
		}
		selected = append(selected, m)
	}

	sort.Slice(selected, func(i, j int) bool {
		if direction == DirectionDown {
			return selected[i].ID > selected[j].ID
		}
		return selected[i].ID < selected[j].ID
	})
	return selected
}

func (mm *MigrationManager) logInfo(msg string, fields ...interface{}) {
	if mm.logger != nil {
		mm.logger.Info(msg, fields...)
	}
}

func (mm *MigrationManager) logError(msg string, fields ...interface{}) {
	if mm.logger != nil {
		mm.logger.Error(msg, fields...)
	}
}
