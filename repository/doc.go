// Package repository provides a generic repository abstraction over a single
// document collection: CRUD with soft delete, batched and bulk operations,
// pagination, and tenant-scoped variants that enforce scope by filter
// composition.
package repository
