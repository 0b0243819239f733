// Package peer tracks the identities of the other nodes in the
// cluster. Peers are owned by a directory; the replication core only
// ever borrows them by name.
package peer

import "sort"

// Node is the handle of one remote cluster member.
type Node struct {
	Name string
	Addr string
}

// MakeNode returns a peer handle.
func MakeNode(name, addr string) *Node {
	return &Node{Name: name, Addr: addr}
}

// Directory resolves node names to peer handles.
type Directory interface {
	// Lookup returns the peer with the given name, or nil when the
	// peer is unknown or no longer reachable.
	Lookup(name string) *Node

	// Names enumerates all known peers.
	Names() []string
}

// StaticDirectory is an in-memory Directory over a fixed member set.
type StaticDirectory struct {
	nodes map[string]*Node
}

// MakeDirectory builds a directory from the given peers.
func MakeDirectory(nodes ...*Node) *StaticDirectory {
	dir := &StaticDirectory{nodes: make(map[string]*Node, len(nodes))}
	for _, node := range nodes {
		dir.nodes[node.Name] = node
	}
	return dir
}

// Lookup implements Directory.
func (dir *StaticDirectory) Lookup(name string) *Node {
	return dir.nodes[name]
}

// Names implements Directory.
func (dir *StaticDirectory) Names() []string {
	names := make([]string, 0, len(dir.nodes))
	for name := range dir.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove forgets a peer, e.g. when the membership layer reports it
// gone. Outstanding borrows simply stop resolving.
func (dir *StaticDirectory) Remove(name string) {
	delete(dir.nodes, name)
}

// Add registers a peer.
func (dir *StaticDirectory) Add(node *Node) {
	dir.nodes[node.Name] = node
}
