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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSpecGenerateName(t *testing.T) {
	spec := IndexSpec{
		Collection: CollectionUsers,
		Keys:       []IndexKey{{Field: "tenantId", Order: 1}, {Field: "email", Order: -1}},
	}
	assert.Equal(t, "tenantId_1_email_-1", spec.GenerateName())

	spec.Name = "users_by_tenant_email"
	assert.Equal(t, "users_by_tenant_email", spec.GenerateName())
}

func TestDefaultIndexSpecsAreValid(t *testing.T) {
	im := NewIndexManager(nil)
	assert.Empty(t, im.ValidateSpecs())
	assert.NotEmpty(t, im.ListAllSpecs())
}

func TestGetSpecsByCollection(t *testing.T) {
	im := NewIndexManager(nil)
	specs := im.GetSpecsByCollection(CollectionUsers)
	require.NotEmpty(t, specs)
	for _, spec := range specs {
		assert.Equal(t, CollectionUsers, spec.Collection)
	}
	assert.Empty(t, im.GetSpecsByCollection("no_such_collection"))
}

func TestValidateSpecsCatchesIssues(t *testing.T) {
	im := &IndexManager{specs: []IndexSpec{
		{Collection: "", Keys: []IndexKey{{Field: "a", Order: 1}}},
		{Collection: "users"},
		{Collection: "users", Keys: []IndexKey{{Field: "", Order: 1}}},
		{Collection: "users", Keys: []IndexKey{{Field: "a", Order: 2}}},
	}}
	errs := im.ValidateSpecs()
	assert.Len(t, errs, 4)
}

func TestConfigurableIndexManagerFallsBackToDefaults(t *testing.T) {
	im, err := NewConfigurableIndexManager(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultIndexSpecs(), im.ListAllSpecs())
}

func TestConfigurableIndexManagerLoadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexes.yaml")
	content := `
indexes:
  - collection: users
    name: users_email
    unique: true
    keys:
      - field: email
        order: 1
  - collection: audit_logs
    expire_after_seconds: 3600
    keys:
      - field: createdAt
        order: -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	im, err := NewConfigurableIndexManager(nil, path)
	require.NoError(t, err)
	specs := im.ListAllSpecs()
	require.Len(t, specs, 2)

	assert.Equal(t, "users", specs[0].Collection)
	assert.Equal(t, "users_email", specs[0].Name)
	assert.True(t, specs[0].Unique)
	assert.Equal(t, []IndexKey{{Field: "email", Order: 1}}, specs[0].Keys)

	assert.Equal(t, time.Hour, specs[1].ExpireAfter)
	assert.Empty(t, im.ValidateSpecs())
	assert.Equal(t, path, im.GetConfigPath())
}

func TestConfigurableIndexManagerExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	im, err := NewConfigurableIndexManager(nil, filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	out := filepath.Join(dir, "exported", "indexes.yaml")
	require.NoError(t, im.ExportToConfig(out))

	reloaded, err := NewConfigurableIndexManager(nil, out)
	require.NoError(t, err)
	assert.Equal(t, im.ListAllSpecs(), reloaded.ListAllSpecs())
}

func TestCollectionsIncludesMigrations(t *testing.T) {
	assert.Contains(t, Collections(), CollectionMigrations)
	assert.Contains(t, Collections(), CollectionTenants)
	assert.Contains(t, Collections(), CollectionUsers)
}
