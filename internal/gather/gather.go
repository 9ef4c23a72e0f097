// Package gather defines the contract shared by market data gatherers.
package gather

import "context"

// Gatherer fetches data from an external source into local storage.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early with the context
	// error when ctx is cancelled.
	Run(ctx context.Context) error
}
