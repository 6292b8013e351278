// Package types defines the document data model shared by the repository
// layer, application-level filter/update/projection specifications, the
// translation of those specifications into MongoDB wire documents, and the
// result structures returned by bulk operations.
package types
