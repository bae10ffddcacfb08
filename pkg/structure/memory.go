package structure

import (
	"fmt"
	"sync"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// MemoryProvider is a mutable in-memory tree, mainly for tests and
// demos. Mutations take effect on the next materialization of the
// touched parent; callers are responsible for invalidating the engine
// afterwards, exactly as a real external source would notify changes.
type MemoryProvider struct {
	mu       sync.RWMutex
	root     model.NodeID
	children map[model.NodeID][]model.NodeID
	payloads map[model.NodeID]model.Payload
	gone     map[model.NodeID]bool

	// Fault, when set, is returned by Children for the given node.
	// Tests use it to simulate transient provider faults.
	faults map[model.NodeID]error
}

// NewMemoryProvider returns a provider with a single root node.
func NewMemoryProvider(root model.NodeID) *MemoryProvider {
	p := &MemoryProvider{
		root:     root,
		children: make(map[model.NodeID][]model.NodeID),
		payloads: make(map[model.NodeID]model.Payload),
		gone:     make(map[model.NodeID]bool),
		faults:   make(map[model.NodeID]error),
	}
	p.payloads[root] = model.Payload{Name: string(root)}
	return p
}

// Root implements Provider.
func (p *MemoryProvider) Root() model.NodeID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

// Children implements Provider.
func (p *MemoryProvider) Children(id model.NodeID) ([]model.NodeID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.faults[id]; err != nil {
		return nil, err
	}
	if p.gone[id] {
		return nil, fmt.Errorf("%s: %w", id, ErrNodeGone)
	}
	if _, known := p.payloads[id]; !known {
		return nil, fmt.Errorf("%s: %w", id, ErrNodeGone)
	}
	return append([]model.NodeID(nil), p.children[id]...), nil
}

// Describe implements Provider.
func (p *MemoryProvider) Describe(id model.NodeID) (model.Payload, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.gone[id] {
		return model.Payload{}, fmt.Errorf("%s: %w", id, ErrNodeGone)
	}
	payload, known := p.payloads[id]
	if !known {
		return model.Payload{}, fmt.Errorf("%s: %w", id, ErrNodeGone)
	}
	return payload, nil
}

// SetChildren replaces the child list of parent, creating default
// payloads for children not seen before.
func (p *MemoryProvider) SetChildren(parent model.NodeID, children ...model.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[parent] = append([]model.NodeID(nil), children...)
	for _, child := range children {
		if _, known := p.payloads[child]; !known {
			p.payloads[child] = model.Payload{Name: string(child)}
		}
		delete(p.gone, child)
	}
}

// SetPayload replaces the payload of id.
func (p *MemoryProvider) SetPayload(id model.NodeID, payload model.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[id] = payload
}

// Touch bumps the payload version of id, simulating a content-only
// domain mutation.
func (p *MemoryProvider) Touch(id model.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload := p.payloads[id]
	payload.Version++
	p.payloads[id] = payload
}

// Remove marks id gone. Its parent's child list is left untouched so
// the engine exercises the concurrent-deletion path.
func (p *MemoryProvider) Remove(id model.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gone[id] = true
}

// SetFault makes Children(id) fail with err until cleared with a nil
// err.
func (p *MemoryProvider) SetFault(id model.NodeID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.faults, id)
		return
	}
	p.faults[id] = err
}
