package structure

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// FSProvider vends a directory tree. NodeIDs are absolute paths, which
// keeps identity stable under content edits and distinct under moves.
// Payload versions derive from mtime and size so content-only changes
// surface as Updated records.
type FSProvider struct {
	root string
	// ShowHidden includes dot-files when true.
	ShowHidden bool
}

// NewFSProvider returns a provider rooted at dir.
func NewFSProvider(dir string) (*FSProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &FSProvider{root: abs}, nil
}

// Root implements Provider.
func (p *FSProvider) Root() model.NodeID {
	return model.NodeID(p.root)
}

// Children implements Provider.
func (p *FSProvider) Children(id model.NodeID) ([]model.NodeID, error) {
	path := string(id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNodeGone)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNodeGone)
		}
		return nil, err
	}
	// Directories first, then files, both name-sorted. This is the
	// provider's natural order; the engine's comparator may override it.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
	ids := make([]model.NodeID, 0, len(entries))
	for _, entry := range entries {
		if !p.ShowHidden && entry.Name()[0] == '.' {
			continue
		}
		ids = append(ids, model.NodeID(filepath.Join(path, entry.Name())))
	}
	return ids, nil
}

// Describe implements Provider.
func (p *FSProvider) Describe(id model.NodeID) (model.Payload, error) {
	path := string(id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Payload{}, fmt.Errorf("%s: %w", path, ErrNodeGone)
		}
		return model.Payload{}, err
	}
	version := uint64(info.ModTime().UnixNano())
	if !info.IsDir() {
		version ^= uint64(info.Size())
	}
	return model.Payload{
		Name:    filepath.Base(path),
		File:    path,
		Version: version,
		Leaf:    !info.IsDir(),
	}, nil
}
