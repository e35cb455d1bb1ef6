package main

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

// injectTree walks tree's children into inj, following the stack-based
// contract every Injector implementation shares: WriteDir pushes a
// directory context, FlushCurrent pops it once all of that directory's
// children have been written (spec.md §4.5).
func injectTree(inj filesystem.Injector, tree *core.Node) error {
	if err := inj.SetRootContext(); err != nil {
		return err
	}
	if err := injectChildren(inj, tree); err != nil {
		return err
	}
	return inj.Flush()
}

func injectChildren(inj filesystem.Injector, node *core.Node) error {
	for _, child := range node.Children {
		switch child.Kind {
		case core.NodeDir:
			if err := inj.WriteDir(child.Name, child.Attr); err != nil {
				return err
			}
			if err := injectChildren(inj, child); err != nil {
				return err
			}
			if err := inj.FlushCurrent(); err != nil {
				return err
			}
		case core.NodeFile:
			if err := inj.WriteFile(child.Name, child.Content, child.Attr); err != nil {
				return err
			}
		case core.NodeContainer:
			if err := injectChildren(inj, child); err != nil {
				return err
			}
		}
	}
	return nil
}
