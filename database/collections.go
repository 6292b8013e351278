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

// Collection names shared across the kernel. Repositories and migrations
// refer to these constants instead of repeating string literals.
const (
	// CollectionMigrations holds the migration history log.
	CollectionMigrations = "schema_migrations"
	// CollectionTenants holds tenant metadata.
	CollectionTenants = "tenants"
	// CollectionUsers holds user documents, scoped per tenant.
	CollectionUsers = "users"
	// CollectionAuditLogs holds audit trail entries.
	CollectionAuditLogs = "audit_logs"
	// CollectionBillingAccounts holds billing account documents.
	CollectionBillingAccounts = "billing_accounts"
)

// Collections enumerates the well-known collection names, migrations
// history included.
func Collections() []string {
	return []string{
		CollectionMigrations,
		CollectionTenants,
		CollectionUsers,
		CollectionAuditLogs,
		CollectionBillingAccounts,
	}
}
