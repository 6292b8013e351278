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
	"os"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// BaseDatabaseFactory creates and manages a configured database manager and
// provides helpers for initialization, health checks, and startup tasks.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// CreateFromConfig constructs a database manager from the given connection
// configuration, applying environment overrides and setting the factory logger.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	// Override sensitive config from environment variables
	f.overrideFromEnv(cfg)

	if cfg.URI == "" {
		return nil, ErrMissingURI
	}
	if cfg.Database == "" {
		cfg.Database = DatabaseNameFromURI(cfg.URI, DefaultDatabaseName)
	}

	// Create manager
	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)

	f.manager = manager
	return manager, nil
}

// overrideFromEnv overrides configuration values from environment variables.
func (f *BaseDatabaseFactory) overrideFromEnv(cfg *ConnectionConfig) {
	// Connection info
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.URI = uri
	}
	if dbname := os.Getenv("MONGO_DATABASE"); dbname != "" {
		cfg.Database = dbname
	}
	if appName := os.Getenv("MONGO_APP_NAME"); appName != "" {
		cfg.AppName = appName
	}

	// Connection pool config
	if minPool := os.Getenv("MONGO_MIN_POOL_SIZE"); minPool != "" {
		if val, err := strconv.ParseUint(minPool, 10, 64); err == nil {
			cfg.MinPoolSize = val
		}
	}
	if maxPool := os.Getenv("MONGO_MAX_POOL_SIZE"); maxPool != "" {
		if val, err := strconv.ParseUint(maxPool, 10, 64); err == nil {
			cfg.MaxPoolSize = val
		}
	}
	if idle := os.Getenv("MONGO_MAX_CONN_IDLE_TIME"); idle != "" {
		if val, err := strconv.Atoi(idle); err == nil {
			cfg.MaxConnIdleTime = time.Duration(val) * time.Second
		}
	}

	// Timeouts
	if timeout := os.Getenv("MONGO_CONNECT_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			cfg.ConnectTimeout = time.Duration(val) * time.Second
		}
	}
	if timeout := os.Getenv("MONGO_SERVER_SELECTION_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			cfg.ServerSelectionTimeout = time.Duration(val) * time.Second
		}
	}

	// Transaction and logging config
	if enableTx := os.Getenv("MONGO_ENABLE_TRANSACTIONS"); enableTx != "" {
		cfg.EnableTransactions = enableTx == "true"
	}
	if enableCmdLog := os.Getenv("MONGO_ENABLE_COMMAND_LOG"); enableCmdLog != "" {
		cfg.EnableCommandLog = enableCmdLog == "true"
	}
}

// InitializeDatabase connects to the deployment and optionally ensures
// indexes and runs the given migrations on startup.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, migrateCfg *MigrateConfig, migrations []MigrationItem) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}

	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if migrateCfg == nil {
		f.logger.Info("Database initialization completed!")
		return nil
	}

	if migrateCfg.EnsureIndexesOnStartup {
		im, err := NewConfigurableIndexManager(f.logger, migrateCfg.IndexConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load index configuration: %w", err)
		}
		if errs := im.ValidateSpecs(); len(errs) > 0 {
			return fmt.Errorf("invalid index configuration: %v", errs)
		}
		if err := im.EnsureAll(ctx, f.manager.Database()); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}
	}

	if migrateCfg.EnableMigrateOnStartup && len(migrations) > 0 {
		mm := NewMigrationManager(f.manager.Database(), f.logger)
		mm.SetEnvironment(migrateCfg.Environment)
		if f.manager.Config().EnableTransactions {
			mm.SetTransactionRunner(f.manager.WithTransaction)
		}
		if _, err := mm.Run(ctx, migrations, RunOptions{Direction: DirectionUp}); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	f.logger.Info("Database initialization completed!")
	return nil
}

// GetManager returns the underlying database manager.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDatabase returns the database handle, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDatabase() *mongo.Database {
	if f.manager == nil {
		return nil
	}
	return f.manager.Database()
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close closes the client managed by the factory.
func (f *BaseDatabaseFactory) Close(ctx context.Context) error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Close(ctx)
}

// GetHealthStatus returns the current health status from the manager.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}
