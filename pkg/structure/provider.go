// Package structure defines the provider capability the tree engine
// materializes from: a root identifier plus, per node, ordered children
// and display metadata. Providers are supplied by the caller; this
// package also ships ready-made providers for in-memory trees,
// directory trees and SQLite adjacency tables.
package structure

import (
	"errors"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// Common provider errors.
var (
	// ErrNodeGone means the provider can no longer produce the node.
	// The engine recovers it locally as a Removed change record; it is
	// never surfaced to the consumer as an error.
	ErrNodeGone = errors.New("node no longer exists")
)

// Provider exposes the mutable external data source the engine mirrors.
//
// Children must report ErrNodeGone (possibly wrapped) when the node
// itself has disappeared; any other error is treated as a transient
// provider fault, leaving the subtree stale until the next
// invalidation. Providers must be safe for calls from the engine's
// worker goroutines if the engine runs more than one worker.
type Provider interface {
	// Root returns the identifier of the tree root.
	Root() model.NodeID
	// Children returns the ordered child identifiers of id.
	Children(id model.NodeID) ([]model.NodeID, error)
	// Describe returns display metadata for id.
	Describe(id model.NodeID) (model.Payload, error)
}
