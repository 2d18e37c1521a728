// Package ports defines the interfaces (ports) that external adapters must implement.
// The formula services depend only on these, so they can be tested against
// in-memory fakes.
package ports
