// Package memory provides an in-memory store for tests and local
// development. All data is lost when the process exits.
package memory
