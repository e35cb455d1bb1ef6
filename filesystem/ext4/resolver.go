package ext4

import (
	"strings"

	"github.com/imgforge/rim/core"
)

// Resolver reverses an ext4 filesystem into a logical core.Node tree, per
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
	ino := rootInode

	if len(segs) == 0 {
		if wildcard {
			return res.buildContainerNode(ino)
		}
		return res.buildDirNode("", ino, core.FileAttributes{Dir: true})
	}

	for i := 0; i < len(segs)-1; i++ {
		e, err := res.lookup(ino, segs[i])
		if err != nil {
			return nil, err
		}
		if e.fileType != dirEntryFileTypeDir {
			return nil, core.ErrInvalid("path component is not a directory: " + segs[i])
		}
		ino = e.inode
	}

	last := segs[len(segs)-1]
	e, err := res.lookup(ino, last)
	if err != nil {
		return nil, err
	}
	if wildcard {
		if e.fileType != dirEntryFileTypeDir {
			return nil, core.ErrInvalid("wildcard target is not a directory: " + last)
		}
		return res.buildContainerNode(e.inode)
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

func (res *Resolver) lookup(dirIno uint32, name string) (dirEntry, error) {
	entries, err := res.readDir(dirIno)
	if err != nil {
		return dirEntry{}, err
	}
	for _, e := range entries {
		if e.name == name {
			return e, nil
		}
	}
	return dirEntry{}, core.ErrInvalid("path not found: " + name)
}

func (res *Resolver) readInode(n uint32) (inode, error) {
	buf := make([]byte, inodeSize)
	if err := res.r.ReadAt(res.meta.InodeOffset(n), buf); err != nil {
		return inode{}, err
	}
	return decodeInode(buf)
}

func (res *Resolver) readDir(dirIno uint32) ([]dirEntry, error) {
	dir, err := res.readInode(dirIno)
	if err != nil {
		return nil, err
	}
	var entries []dirEntry
	for _, block := range dir.chain() {
		buf := make([]byte, res.meta.blockSize)
		if err := res.r.ReadAt(res.meta.OffsetOf(block), buf); err != nil {
			return nil, err
		}
		blockEntries, err := decodeDirBlock(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, blockEntries...)
	}
	var visible []dirEntry
	for _, e := range entries {
		if e.name == "." || e.name == ".." {
			continue
		}
		if dirIno == rootInode && e.inode == lostFoundInode {
			continue // Formatter-created, not part of the injected tree
		}
		visible = append(visible, e)
	}
	return visible, nil
}

func (res *Resolver) readFile(ino uint32) ([]byte, error) {
	file, err := res.readInode(ino)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, file.sizeLo)
	remaining := int64(file.sizeLo)
	for _, block := range file.chain() {
		if remaining <= 0 {
			break
		}
		buf := make([]byte, res.meta.blockSize)
		if err := res.r.ReadAt(res.meta.OffsetOf(block), buf); err != nil {
			return nil, err
		}
		n := int64(len(buf))
		if n > remaining {
			n = remaining
		}
		out = append(out, buf[:n]...)
		remaining -= n
	}
	return out, nil
}

func (res *Resolver) attrForEntry(e dirEntry) (core.FileAttributes, error) {
	i, err := res.readInode(e.inode)
	if err != nil {
		return core.FileAttributes{}, err
	}
	mode := i.mode & 0xFFF
	return core.FileAttributes{Dir: i.isDir(), Mode: &mode}, nil
}

func (res *Resolver) buildNodeFromEntry(e dirEntry) (*core.Node, error) {
	attr, err := res.attrForEntry(e)
	if err != nil {
		return nil, err
	}
	if e.fileType == dirEntryFileTypeDir {
		return res.buildDirNode(e.name, e.inode, attr)
	}
	content, err := res.readFile(e.inode)
	if err != nil {
		return nil, err
	}
	return core.NewFile(e.name, content, attr), nil
}

func (res *Resolver) buildDirNode(name string, dirIno uint32, attr core.FileAttributes) (*core.Node, error) {
	entries, err := res.readDir(dirIno)
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

func (res *Resolver) buildContainerNode(dirIno uint32) (*core.Node, error) {
	entries, err := res.readDir(dirIno)
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
