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
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gopkg.in/yaml.v3"
)

// AbstractDatabaseManager defines the operations for managing the shared
// client handle, running units of work in transactions, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	IsConnected() bool
	Client() *mongo.Client
	Database() *mongo.Database
	Collection(name string) *mongo.Collection
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	WithRetryableTransaction(ctx context.Context, fn func(ctx context.Context) error, maxRetries int) error
	Config() *ConnectionConfig
	SetLogger(logger Logger)
}

// AbstractDatabaseConfigProvider exposes configuration loading.
type AbstractDatabaseConfigProvider interface {
	ConfigLoader() *Config
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// ConnectionConfig describes how to reach the document store and tune the
// driver. The defaults favor short-lived serverless callers: fast failure on
// unreachable servers, majority-acknowledged writes, majority reads, and
// driver-level retryable reads/writes.
type ConnectionConfig struct {
	URI                    string        `yaml:"uri" json:"uri"`
	Database               string        `yaml:"database" json:"database"`
	AppName                string        `yaml:"app_name" json:"app_name"`
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout" json:"server_selection_timeout"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	SocketTimeout          time.Duration `yaml:"socket_timeout" json:"socket_timeout"`
	MinPoolSize            uint64        `yaml:"min_pool_size" json:"min_pool_size"`
	MaxPoolSize            uint64        `yaml:"max_pool_size" json:"max_pool_size"`
	MaxConnIdleTime        time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
	RetryReads             bool          `yaml:"retry_reads" json:"retry_reads"`
	RetryWrites            bool          `yaml:"retry_writes" json:"retry_writes"`
	Compressors            []string      `yaml:"compressors" json:"compressors"`
	EnableTransactions     bool          `yaml:"enable_transactions" json:"enable_transactions"`
	MaxTxRetries           int           `yaml:"max_tx_retries" json:"max_tx_retries"`
	EnableCommandLog       bool          `yaml:"enable_command_log" json:"enable_command_log"`
	SlowOpThreshold        time.Duration `yaml:"slow_op_threshold" json:"slow_op_threshold"`
}

// MigrateConfig controls migration and index synchronization on startup.
type MigrateConfig struct {
	EnableMigrateOnStartup bool   `yaml:"enable_migrate_on_startup" json:"enable_migrate_on_startup"`
	EnsureIndexesOnStartup bool   `yaml:"ensure_indexes_on_startup" json:"ensure_indexes_on_startup"`
	IndexConfigFile        string `yaml:"index_config_file" json:"index_config_file"`
	Environment            string `yaml:"environment" json:"environment"`
}

// Config aggregates connection and migration settings.
type Config struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Migrate    MigrateConfig    `yaml:"migrate" json:"migrate"`
}

// DefaultConnectionConfig returns a connection config with the systemic
// defaults described above.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Database:               DefaultDatabaseName,
		AppName:                "substrate",
		ServerSelectionTimeout: time.Second * 5,
		ConnectTimeout:         time.Second * 10,
		SocketTimeout:          time.Second * 30,
		MinPoolSize:            0,
		MaxPoolSize:            10,
		MaxConnIdleTime:        time.Minute,
		RetryReads:             true,
		RetryWrites:            true,
		Compressors:            []string{"zstd", "zlib", "snappy"},
		EnableTransactions:     false,
		MaxTxRetries:           3,
		SlowOpThreshold:        time.Second * 2,
	}
}

// DefaultDatabaseName is used when the connection string does not name a
// database or cannot be parsed.
const DefaultDatabaseName = "app"

// DatabaseNameFromURI extracts the default database from a connection
// string. Malformed URIs fall back to the provided name instead of failing.
func DatabaseNameFromURI(uri string, fallback string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fallback
	}
	name := strings.TrimPrefix(parsed.Path, "/")
	if name == "" || strings.ContainsAny(name, "/\\. \"$") {
		return fallback
	}
	return name
}

// LoadConfig reads a YAML configuration file, after loading a .env file when
// one is present, and fills unset connection values with defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Connection: *DefaultConnectionConfig()}
	// Leave Database unset so applyDefaults can derive it from the URI
	// when the file does not name one.
	cfg.Connection.Database = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConnectionConfig()
	cc := &c.Connection
	if cc.Database == "" {
		cc.Database = DatabaseNameFromURI(cc.URI, def.Database)
	}
	if cc.ServerSelectionTimeout <= 0 {
		cc.ServerSelectionTimeout = def.ServerSelectionTimeout
	}
	if cc.ConnectTimeout <= 0 {
		cc.ConnectTimeout = def.ConnectTimeout
	}
	if cc.SocketTimeout <= 0 {
		cc.SocketTimeout = def.SocketTimeout
	}
	if cc.MaxPoolSize == 0 {
		cc.MaxPoolSize = def.MaxPoolSize
	}
	if cc.MaxConnIdleTime <= 0 {
		cc.MaxConnIdleTime = def.MaxConnIdleTime
	}
	if cc.Compressors == nil {
		cc.Compressors = def.Compressors
	}
	if cc.MaxTxRetries <= 0 {
		cc.MaxTxRetries = def.MaxTxRetries
	}
	if cc.SlowOpThreshold <= 0 {
		cc.SlowOpThreshold = def.SlowOpThreshold
	}
	if c.Migrate.Environment == "" {
		c.Migrate.Environment = "development"
	}
}
