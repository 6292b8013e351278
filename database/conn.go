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

	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	globalMu      sync.Mutex
	globalFactory *BaseDatabaseFactory
	globalConfig  *Config
)

// migration registry: packages register their migrations in init() and the
// startup path picks them all up through InitDB.
var (
	registryMu          sync.Mutex
	registeredMigration []MigrationItem
)

// RegisterMigrations adds migrations to the process-wide registry.
func RegisterMigrations(items ...MigrationItem) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredMigration = append(registeredMigration, items...)
}

// RegisteredMigrations returns a copy of the process-wide migration registry.
func RegisteredMigrations() []MigrationItem {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]MigrationItem, len(registeredMigration))
	copy(out, registeredMigration)
	return out
}

// GetDatabase returns the global database handle, or nil before InitDB.
func GetDatabase() *mongo.Database {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory != nil {
		return globalFactory.GetDatabase()
	}
	return nil
}

// GetCollection returns a raw handle on the global database, or nil before
// InitDB.
func GetCollection(name string) *mongo.Collection {
	db := GetDatabase()
	if db == nil {
		return nil
	}
	return db.Collection(name)
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetDatabaseFactory returns the global database factory.
func GetDatabaseFactory() *BaseDatabaseFactory {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalFactory
}

// InitDB initializes the global database using the provided configuration,
// ensuring indexes and running registered migrations per cfg.Migrate.
func InitDB(ctx context.Context, cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(&cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := factory.InitializeDatabase(ctx, &cfg.Migrate, RegisteredMigrations()); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	globalFactory = factory
	globalConfig = cfg
	globalMu.Unlock()
	return manager, nil
}

// InitDBWithProvider initializes the global database from a caller-supplied
// configuration source.
func InitDBWithProvider(ctx context.Context, provider AbstractDatabaseConfigProvider) (AbstractDatabaseManager, error) {
	if provider == nil {
		return nil, fmt.Errorf("database configuration provider cannot be empty")
	}
	return InitDB(ctx, provider.ConfigLoader())
}

// CloseDB closes the global database connection.
func CloseDB(ctx context.Context) error {
	globalMu.Lock()
	factory := globalFactory
	globalFactory = nil
	globalConfig = nil
	globalMu.Unlock()
	if factory != nil {
		return factory.Close(ctx)
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	globalMu.Lock()
	factory := globalFactory
	globalMu.Unlock()
	if factory != nil {
		return factory.GetHealthStatus(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "Database not initialized",
	}
}

// RunMigrations executes the registered migrations with the given options
// against the global database.
func RunMigrations(ctx context.Context, opts RunOptions) (*RunResult, error) {
	globalMu.Lock()
	factory := globalFactory
	cfg := globalConfig
	globalMu.Unlock()
	if factory == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	manager := factory.GetManager()
	if manager == nil || manager.Database() == nil {
		return nil, fmt.Errorf("database manager not initialized")
	}

	mm := NewMigrationManager(manager.Database(), GetLogger())
	if cfg != nil {
		mm.SetEnvironment(cfg.Migrate.Environment)
	}
	if manager.Config().EnableTransactions {
		mm.SetTransactionRunner(manager.WithTransaction)
	}
	return mm.Run(ctx, RegisteredMigrations(), opts)
}
