// Package ports defines the interfaces (ports) that storage, identity and
// evaluation adapters must implement. Services depend only on these, so the
// in-memory store and the SQL repositories are interchangeable.
package ports
