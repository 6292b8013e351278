// Package database provides connection management, transactions, schema
// migrations, index synchronization, configuration types, logging, health
// checks, and related utilities built on top of the MongoDB driver.
package database
