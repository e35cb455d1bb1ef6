package exfat

import (
	"strings"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem/fatchain"
)

// Resolver reverses an exFAT filesystem into a logical core.Node tree, per
// spec.md §4.7.
type Resolver struct {
	meta *Meta
	r    core.BlockIO
}

// NewResolver builds a Resolver reading through r using meta's geometry.
func NewResolver(r core.BlockIO, meta *Meta) *Resolver {
	return &Resolver{meta: meta, r: r}
}

// Resolve returns the Node at path. A trailing "/*" segment resolves to a
// core.NodeContainer of the addressed directory's children.
func (res *Resolver) Resolve(path string) (*core.Node, error) {
	segs, wildcard := splitResolvePath(path)
	cluster := res.meta.RootUnit()

	if len(segs) == 0 {
		if wildcard {
			return res.buildContainerNode(cluster)
		}
		return res.buildDirNode("", cluster, core.FileAttributes{Dir: true})
	}

	for i := 0; i < len(segs)-1; i++ {
		e, err := res.lookup(cluster, segs[i])
		if err != nil {
			return nil, err
		}
		if !e.IsDir {
			return nil, core.ErrInvalid("path component is not a directory: " + segs[i])
		}
		cluster = e.Cluster
	}

	last := segs[len(segs)-1]
	e, err := res.lookup(cluster, last)
	if err != nil {
		return nil, err
	}
	if wildcard {
		if !e.IsDir {
			return nil, core.ErrInvalid("wildcard target is not a directory: " + last)
		}
		return res.buildContainerNode(e.Cluster)
	}
	return res.buildNodeFromEntry(e)
}

func splitResolvePath(path string) (segs []string, wildcard bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, false
	}
	parts := strings.Split(trimmed, "/")
	if parts[len(parts)-1] == "*" {
		return parts[:len(parts)-1], true
	}
	return parts, false
}

func (res *Resolver) lookup(cluster uint32, name string) (parsedExfatEntry, error) {
	entries, err := res.readDir(cluster)
	if err != nil {
		return parsedExfatEntry{}, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return e, nil
		}
	}
	return parsedExfatEntry{}, core.ErrInvalid("path not found: " + name)
}

func (res *Resolver) readDir(cluster uint32) ([]parsedExfatEntry, error) {
	chain, err := fatchain.ReadChain(res.r, chainParams(), res.meta.fatOffset(), res.meta.entryOffset, cluster, res.meta.TotalUnits()+1)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, int64(len(chain))*res.meta.UnitSize())
	for _, cl := range chain {
		unit := make([]byte, res.meta.UnitSize())
		if err := res.r.ReadAt(res.meta.OffsetOf(cl), unit); err != nil {
			return nil, err
		}
		buf = append(buf, unit...)
	}
	return parseEntrySet(buf), nil
}

func (res *Resolver) readFile(first uint32, size uint64) ([]byte, error) {
	if first == 0 || size == 0 {
		return []byte{}, nil
	}
	chain, err := fatchain.ReadChain(res.r, chainParams(), res.meta.fatOffset(), res.meta.entryOffset, first, res.meta.TotalUnits()+1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, size)
	remaining := int64(size)
	for _, cl := range chain {
		if remaining <= 0 {
			break
		}
		unit := make([]byte, res.meta.UnitSize())
		if err := res.r.ReadAt(res.meta.OffsetOf(cl), unit); err != nil {
			return nil, err
		}
		n := int64(len(unit))
		if n > remaining {
			n = remaining
		}
		out = append(out, unit[:n]...)
		remaining -= n
	}
	return out, nil
}

func (res *Resolver) buildNodeFromEntry(e parsedExfatEntry) (*core.Node, error) {
	if e.IsDir {
		return res.buildDirNode(e.Name, e.Cluster, e.Attr)
	}
	content, err := res.readFile(e.Cluster, e.Size)
	if err != nil {
		return nil, err
	}
	return core.NewFile(e.Name, content, e.Attr), nil
}

func (res *Resolver) buildDirNode(name string, cluster uint32, attr core.FileAttributes) (*core.Node, error) {
	entries, err := res.readDir(cluster)
	if err != nil {
		return nil, err
	}
	children := make([]*core.Node, 0, len(entries))
	for _, e := range entries {
		child, err := res.buildNodeFromEntry(e)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return core.NewDir(name, children, attr), nil
}

func (res *Resolver) buildContainerNode(cluster uint32) (*core.Node, error) {
	entries, err := res.readDir(cluster)
	if err != nil {
		return nil, err
	}
	children := make([]*core.Node, 0, len(entries))
	for _, e := range entries {
		child, err := res.buildNodeFromEntry(e)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return core.NewContainer(children), nil
}
