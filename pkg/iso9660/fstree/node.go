// Package fstree holds the in-memory model of the volume's filesystem tree:
// a closed set of node kinds (file, directory) with parent back-references,
// plus the traversal orders the layout and write passes are built on.
package fstree

import (
	"fmt"
	"os"
	"sort"

	"github.com/psxtools/psx-kit/pkg/consts"
)

// Kind discriminates the two node variants. The set is closed: the build
// passes switch over it rather than using open polymorphism.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// Node is a file or directory in the filesystem tree. Layout fields
// (FirstSector, NumSectors, Data, RecordNumber) are written exactly once by
// their owning build pass and read-only afterwards.
type Node struct {
	Kind Kind

	// Name is the on-disc identifier. File names carry the ";1" version
	// suffix; the root directory's name is empty.
	Name string

	// HostPath locates the backing item in the host filesystem.
	HostPath string

	// Parent is the owning directory, nil for the root.
	Parent *Node

	// Children in catalog declaration order. Allocation and image writing use
	// this order so that a catalog can predict contiguous LBN layout.
	Children []*Node

	// FirstSector is the first logical sector of the node's extent.
	FirstSector uint32

	// NumSectors is the extent size in sectors.
	NumSectors uint32

	// RequestedStartSector is the fixed LBN requested in the catalog
	// (0 = don't care).
	RequestedStartSector uint32

	// Size in bytes (files only).
	Size uint32

	// IsForm2 marks an XA Form 2 file (files only).
	IsForm2 bool

	// Data is the serialized directory extent (directories only), produced
	// once the layout of all children is known.
	Data []byte

	// RecordNumber is the 1-based path table record number (directories
	// only; the root is always record 1).
	RecordNumber uint16
}

// NewDirectory creates a directory node and links it to its parent.
func NewDirectory(name, hostPath string, parent *Node, startSector uint32) *Node {
	d := &Node{
		Kind:                 KindDirectory,
		Name:                 name,
		HostPath:             hostPath,
		Parent:               parent,
		RequestedStartSector: startSector,
	}
	if parent != nil {
		parent.Children = append(parent.Children, d)
	}
	return d
}

// NewFile creates a file node from its backing host file, deriving the byte
// size and the extent size in sectors. Form 2 files are sized in raw
// 2336-byte blocks, Form 1 files in 2048-byte logical blocks. Empty files
// still occupy one sector.
func NewFile(name, hostPath string, parent *Node, startSector uint32, isForm2 bool) (*Node, error) {
	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, fmt.Errorf("cannot stat file %s: %w", hostPath, err)
	}

	blockSize := int64(consts.ISO9660_SECTOR_SIZE)
	if isForm2 {
		blockSize = consts.M2RAW_SECTOR_SIZE
	}
	numSectors := (info.Size() + blockSize - 1) / blockSize
	if numSectors == 0 {
		numSectors = 1 // empty files use one sector
	}

	f := &Node{
		Kind:                 KindFile,
		Name:                 name,
		HostPath:             hostPath,
		Parent:               parent,
		NumSectors:           uint32(numSectors),
		RequestedStartSector: startSector,
		Size:                 uint32(info.Size()),
		IsForm2:              isForm2,
	}
	if parent != nil {
		parent.Children = append(parent.Children, f)
	}
	return f, nil
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == KindDirectory
}

// Path returns the node's path inside the volume, with "/" for the root.
func (n *Node) Path() string {
	if n.Parent == nil {
		return "/"
	}
	if n.Parent.Parent == nil {
		return "/" + n.Name
	}
	return n.Parent.Path() + "/" + n.Name
}

// SortedChildren returns the children sorted by name, the order ISO9660
// requires for directory records and path table entries.
func (n *Node) SortedChildren() []*Node {
	sorted := make([]*Node, len(n.Children))
	copy(sorted, n.Children)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// Order selects one of the three traversal orders over a tree.
type Order int

const (
	// PreOrder visits a parent before its children, children in declaration
	// order. The allocation and image-write passes both use this order; the
	// sectors assigned by the former are where the latter puts the bytes.
	PreOrder Order = iota

	// PreOrderSorted visits a parent before its children, children sorted by
	// name. Used for directory sizing and extent serialization.
	PreOrderSorted

	// BreadthFirstSorted visits nodes level by level, children sorted by
	// name. Used for path table construction, where parent record numbers
	// must exist before children reference them.
	BreadthFirstSorted
)

// Walk visits every node of the subtree rooted at n exactly once in the given
// order. Returning an error from fn aborts the walk.
func (n *Node) Walk(order Order, fn func(*Node) error) error {
	switch order {
	case PreOrder:
		return walkPre(n, fn, false)
	case PreOrderSorted:
		return walkPre(n, fn, true)
	case BreadthFirstSorted:
		queue := []*Node{n}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			if err := fn(node); err != nil {
				return err
			}
			queue = append(queue, node.SortedChildren()...)
		}
		return nil
	default:
		return fmt.Errorf("unknown traversal order %d", order)
	}
}

func walkPre(n *Node, fn func(*Node) error, sorted bool) error {
	if err := fn(n); err != nil {
		return err
	}
	children := n.Children
	if sorted {
		children = n.SortedChildren()
	}
	for _, c := range children {
		if err := walkPre(c, fn, sorted); err != nil {
			return err
		}
	}
	return nil
}
