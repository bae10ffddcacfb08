package model

import "strings"

// Action is a visitor's verdict for one visited path.
type Action int

const (
	// ActionContinue descends into the visited node's children.
	ActionContinue Action = iota
	// ActionInterrupt accepts the visited path as the result and stops
	// the traversal.
	ActionInterrupt
	// ActionSkipChildren prunes the visited node's subtree and moves on
	// to its next sibling.
	ActionSkipChildren
	// ActionSkipSiblings prunes the subtree and the remaining siblings
	// at the same level.
	ActionSkipSiblings
)

// Visitor drives a predicate-guided traversal. The engine calls Visit
// once per reached path, root first, with the payload recorded by that
// node's latest materialization. Visitors must be stateless or
// internally synchronized; the same visitor value may be re-run.
type Visitor interface {
	Visit(path TreePath, payload Payload) Action
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(path TreePath, payload Payload) Action

func (f VisitorFunc) Visit(path TreePath, payload Payload) Action {
	return f(path, payload)
}

// fileMayContain reports whether a node backed by dir can contain file.
// An unknown backing resource never rules a subtree out.
func fileMayContain(dir, file string) bool {
	if dir == "" || file == "" {
		return true
	}
	if dir == file {
		return true
	}
	return strings.HasPrefix(file, strings.TrimSuffix(dir, "/")+"/")
}

// NewElementVisitor returns a visitor resolving the path of the node
// wrapping the given domain element. file, when non-empty, is the
// element's backing resource and is used to prune subtrees that cannot
// contain it.
func NewElementVisitor(element, file string) Visitor {
	return VisitorFunc(func(path TreePath, payload Payload) Action {
		if payload.Element == element && element != "" {
			return ActionInterrupt
		}
		if payload.Leaf {
			return ActionSkipChildren
		}
		if !fileMayContain(payload.File, file) {
			return ActionSkipChildren
		}
		return ActionContinue
	})
}

// NewFileVisitor returns a visitor resolving the path of the node backed
// by the given file or resource key.
func NewFileVisitor(file string) Visitor {
	return VisitorFunc(func(path TreePath, payload Payload) Action {
		if payload.File == file && file != "" {
			return ActionInterrupt
		}
		if payload.Leaf {
			return ActionSkipChildren
		}
		if !fileMayContain(payload.File, file) {
			return ActionSkipChildren
		}
		return ActionContinue
	})
}

// Collector wraps a visitor so a traversal reports every match instead
// of stopping at the first: each ActionInterrupt from the wrapped
// visitor is recorded and converted to ActionContinue.
type Collector struct {
	visitor Visitor
	paths   []TreePath
}

// NewCollector returns a collector around v.
func NewCollector(v Visitor) *Collector {
	return &Collector{visitor: v}
}

func (c *Collector) Visit(path TreePath, payload Payload) Action {
	action := c.visitor.Visit(path, payload)
	if action != ActionInterrupt {
		return action
	}
	dup := make(TreePath, len(path))
	copy(dup, path)
	c.paths = append(c.paths, dup)
	return ActionContinue
}

// Paths returns the matched paths in visit order.
func (c *Collector) Paths() []TreePath { return c.paths }
