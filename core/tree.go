package core

import (
	"os"
	"path/filepath"
	"sort"

	times "gopkg.in/djherbis/times.v1"
)

// TreeFromHost walks a host directory into a Node tree suitable for an
// Injector, reading each regular file's content into memory and each
// entry's timestamps via times.Stat. Entries are sorted by name so repeated
// builds from the same source tree produce byte-identical images.
//
// Symlinks are followed via os.Stat (not os.Lstat); anything that is
// neither a regular file nor a directory after following is skipped.
func TreeFromHost(rootPath string) (*Node, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, ErrIO("stat host tree root", err)
	}
	if !info.IsDir() {
		return nil, ErrInvalid("host tree root " + rootPath + " is not a directory")
	}
	children, err := readHostDir(rootPath)
	if err != nil {
		return nil, err
	}
	return NewDir(filepath.Base(rootPath), children, attrsFromHost(rootPath, info)), nil
}

func readHostDir(dirPath string) ([]*Node, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, ErrIO("read host directory "+dirPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var nodes []*Node
	for _, entry := range entries {
		childPath := filepath.Join(dirPath, entry.Name())
		info, err := os.Stat(childPath)
		if err != nil {
			return nil, ErrIO("stat host entry "+childPath, err)
		}
		attr := attrsFromHost(childPath, info)

		switch {
		case info.IsDir():
			grandchildren, err := readHostDir(childPath)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, NewDir(entry.Name(), grandchildren, attr))
		case info.Mode().IsRegular():
			content, err := os.ReadFile(childPath)
			if err != nil {
				return nil, ErrIO("read host file "+childPath, err)
			}
			nodes = append(nodes, NewFile(entry.Name(), content, attr))
		default:
			// device nodes, sockets, fifos: not representable in any of
			// FAT32/exFAT/ext4's supported entry kinds here, skipped.
		}
	}
	return nodes, nil
}

func attrsFromHost(path string, info os.FileInfo) FileAttributes {
	attr := FileAttributes{
		Archive: !info.IsDir(),
	}
	mode := uint16(info.Mode().Perm())
	attr.Mode = &mode
	if info.Mode().Perm()&0200 == 0 {
		attr.ReadOnly = true
	}

	ts, err := times.Stat(path)
	if err != nil {
		return attr
	}
	mtime := ts.ModTime()
	attr.Modified = &mtime
	atime := ts.AccessTime()
	attr.Accessed = &atime
	if ts.HasBirthTime() {
		btime := ts.BirthTime()
		attr.Created = &btime
	}
	return attr
}

// DirSize sums the apparent size in bytes of every regular file under
// rootPath, without reading file content - used to resolve a manifest
// partition's "auto" size without loading the whole payload into memory.
func DirSize(rootPath string) (int64, error) {
	var total int64
	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, ErrIO("walk host tree "+rootPath, err)
	}
	return total, nil
}
