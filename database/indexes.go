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
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gopkg.in/yaml.v3"
)

// IndexKey is one field of a compound index. Order is 1 (ascending) or
// -1 (descending).
type IndexKey struct {
	Field string
	Order int
}

// IndexSpec describes a secondary index on a collection.
type IndexSpec struct {
	Collection  string
	Name        string
	Keys        []IndexKey
	Unique      bool
	Sparse      bool
	ExpireAfter time.Duration
}

// GenerateName returns the explicit name or a derived field_order name.
func (s *IndexSpec) GenerateName() string {
	if s.Name != "" {
		return s.Name
	}
	parts := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		parts = append(parts, fmt.Sprintf("%s_%d", k.Field, k.Order))
	}
	return strings.Join(parts, "_")
}

func (s *IndexSpec) model() mongo.IndexModel {
	keys := bson.D{}
	for _, k := range s.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: k.Order})
	}
	opts := options.Index().SetName(s.GenerateName())
	if s.Unique {
		opts.SetUnique(true)
	}
	if s.Sparse {
		opts.SetSparse(true)
	}
	if s.ExpireAfter > 0 {
		opts.SetExpireAfterSeconds(int32(s.ExpireAfter / time.Second))
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// IndexManager ensures collections exist and carry their declared indexes.
type IndexManager struct {
	specs  []IndexSpec
	logger Logger
}

// NewIndexManager creates a manager with code-defined index specs.
func NewIndexManager(logger Logger) *IndexManager {
	return &IndexManager{
		specs:  defaultIndexSpecs(),
		logger: logger,
	}
}

// defaultIndexSpecs covers the well-known collections: tenant scoping
// fields, soft-delete lookups, and the audit trail.
func defaultIndexSpecs() []IndexSpec {
	return []IndexSpec{
		{Collection: CollectionTenants, Keys: []IndexKey{{Field: "slug", Order: 1}}, Unique: true},
		{Collection: CollectionUsers, Keys: []IndexKey{{Field: "tenantId", Order: 1}, {Field: "email", Order: 1}}, Unique: true},
		{Collection: CollectionUsers, Keys: []IndexKey{{Field: "tenantId", Order: 1}, {Field: "deletedAt", Order: 1}}},
		{Collection: CollectionAuditLogs, Keys: []IndexKey{{Field: "tenantId", Order: 1}, {Field: "createdAt", Order: -1}}},
		{Collection: CollectionBillingAccounts, Keys: []IndexKey{{Field: "tenantId", Order: 1}}, Unique: true},
	}
}

// EnsureAll creates the target collections (ignoring NamespaceExists) and
// their indexes. Index creation is idempotent for identical definitions.
func (im *IndexManager) EnsureAll(ctx context.Context, db *mongo.Database) error {
	byCollection := make(map[string][]mongo.IndexModel)
	for _, spec := range im.specs {
		byCollection[spec.Collection] = append(byCollection[spec.Collection], spec.model())
	}

	for _, name := range Collections() {
		if err := db.CreateCollection(ctx, name); err != nil {
			if !isNamespaceExists(err) {
				return fmt.Errorf("failed to create collection %s: %w", name, err)
			}
		}
	}

	for coll, models := range byCollection {
		names, err := db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
		if im.logger != nil {
			im.logger.Debug("Ensured indexes", "collection", coll, "indexes", strings.Join(names, ","))
		}
	}
	return nil
}

// isNamespaceExists matches server code 48.
func isNamespaceExists(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(48)
	}
	return false
}

// ListAllSpecs returns all configured index specs.
func (im *IndexManager) ListAllSpecs() []IndexSpec {
	return im.specs
}

// GetSpecsByCollection returns the specs declared for one collection.
func (im *IndexManager) GetSpecsByCollection(collection string) []IndexSpec {
	var result []IndexSpec
	for _, spec := range im.specs {
		if strings.EqualFold(spec.Collection, collection) {
			result = append(result, spec)
		}
	}
	return result
}

// ValidateSpecs checks the configured specs for common issues.
func (im *IndexManager) ValidateSpecs() []error {
	var errs []error
	for _, spec := range im.specs {
		if spec.Collection == "" {
			errs = append(errs, fmt.Errorf("collection name cannot be empty"))
		}
		if len(spec.Keys) == 0 {
			errs = append(errs, fmt.Errorf("index on %s has no keys", spec.Collection))
		}
		for _, key := range spec.Keys {
			if key.Field == "" {
				errs = append(errs, fmt.Errorf("index key field cannot be empty: %s", spec.Collection))
			}
			if key.Order != 1 && key.Order != -1 {
				errs = append(errs, fmt.Errorf("invalid key order %d on %s.%s", key.Order, spec.Collection, key.Field))
			}
		}
	}
	return errs
}

// IndexConfig is the YAML structure that lists index specs.
type IndexConfig struct {
	Indexes []IndexSpecConfig `yaml:"indexes"`
}

// IndexSpecConfig describes a single index in configuration.
type IndexSpecConfig struct {
	Collection   string         `yaml:"collection"`
	Name         string         `yaml:"name"`
	Keys         []IndexKeyPair `yaml:"keys"`
	Unique       bool           `yaml:"unique"`
	Sparse       bool           `yaml:"sparse"`
	ExpireAfterS int64          `yaml:"expire_after_seconds"`
	Description  string         `yaml:"description"`
}

// IndexKeyPair is one field/order pair in configuration.
type IndexKeyPair struct {
	Field string `yaml:"field"`
	Order int    `yaml:"order"`
}

// ToIndexSpec converts the config entry into a runtime spec.
func (c *IndexSpecConfig) ToIndexSpec() IndexSpec {
	keys := make([]IndexKey, 0, len(c.Keys))
	for _, k := range c.Keys {
		keys = append(keys, IndexKey{Field: k.Field, Order: k.Order})
	}
	return IndexSpec{
		Collection:  c.Collection,
		Name:        c.Name,
		Keys:        keys,
		Unique:      c.Unique,
		Sparse:      c.Sparse,
		ExpireAfter: time.Duration(c.ExpireAfterS) * time.Second,
	}
}

// ConfigurableIndexManager loads index specs from a YAML configuration file
// and falls back to code-defined defaults.
type ConfigurableIndexManager struct {
	*IndexManager
	configPath string
}

// NewConfigurableIndexManager creates an index manager using the provided
// YAML configuration file path.
func NewConfigurableIndexManager(logger Logger, configPath string) (*ConfigurableIndexManager, error) {
	manager := &ConfigurableIndexManager{
		configPath: configPath,
	}
	specs, err := manager.loadFromConfig()
	if err != nil {
		if logger != nil {
			logger.Debug("Failed to load index specs from config, using code-defined defaults", "error", err.Error(), "config_path", configPath)
		}
		specs = defaultIndexSpecs()
	}

	manager.IndexManager = &IndexManager{
		specs:  specs,
		logger: logger,
	}

	return manager, nil
}

func (cim *ConfigurableIndexManager) loadFromConfig() ([]IndexSpec, error) {
	if _, err := os.Stat(cim.configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", cim.configPath)
	}

	data, err := os.ReadFile(cim.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config IndexConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var specs []IndexSpec
	for _, specConfig := range config.Indexes {
		specs = append(specs, specConfig.ToIndexSpec())
	}

	return specs, nil
}

// ReloadConfig refreshes specs from the YAML configuration file.
func (cim *ConfigurableIndexManager) ReloadConfig() error {
	specs, err := cim.loadFromConfig()
	if err != nil {
		return err
	}

	cim.specs = specs
	return nil
}

// ExportToConfig writes the current specs into a YAML configuration file at
// the given output path, creating directories as needed.
func (cim *ConfigurableIndexManager) ExportToConfig(outputPath string) error {
	var configSpecs []IndexSpecConfig
	for _, spec := range cim.specs {
		keys := make([]IndexKeyPair, 0, len(spec.Keys))
		fields := make([]string, 0, len(spec.Keys))
		for _, k := range spec.Keys {
			keys = append(keys, IndexKeyPair{Field: k.Field, Order: k.Order})
			fields = append(fields, k.Field)
		}
		configSpecs = append(configSpecs, IndexSpecConfig{
			Collection:   spec.Collection,
			Name:         spec.Name,
			Keys:         keys,
			Unique:       spec.Unique,
			Sparse:       spec.Sparse,
			ExpireAfterS: int64(spec.ExpireAfter / time.Second),
			Description:  fmt.Sprintf("%s(%s)", spec.Collection, strings.Join(fields, ",")),
		})
	}

	config := IndexConfig{
		Indexes: configSpecs,
	}

	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the YAML configuration file.
func (cim *ConfigurableIndexManager) GetConfigPath() string {
	return cim.configPath
}
