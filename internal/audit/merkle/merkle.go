// Package merkle maintains an append-only binary hash tree over a tenant's
// entry hashes and answers inclusion-proof queries.
//
// The tree is rebuilt from its full leaf list on every insertion. That is a
// deliberate simplicity trade-off: the tree is small per tenant, fully
// reconstructible from persisted leaf hashes, and the rebuild keeps the
// pairing rules in one place. A Certificate-Transparency style forest of
// perfect subtrees would drop insertion to amortized O(log n) without
// changing the proof contract, if throughput ever demands it.
package merkle

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"veritrail/pkg/domain"
)

// Direction tells a verifier which side of the concatenation a sibling hash
// belongs on. Without it, a proof for a right-hand child could not reproduce
// the root: parents are hash(left || right), not an unordered combination.
type Direction string

const (
	// DirectionLeft means the sibling sits to the left of the running hash.
	DirectionLeft Direction = "left"
	// DirectionRight means the sibling sits to the right of the running hash.
	DirectionRight Direction = "right"
)

// ProofStep is one level of an inclusion proof: the sibling's hash and which
// side it occupies.
type ProofStep struct {
	Hash      string    `json:"hash"`
	Direction Direction `json:"direction"`
}

// Node is a single tree node. The tree exclusively owns Left and Right;
// Parent is a non-owning back-reference used for proof extraction.
type Node struct {
	Hash    string
	Left    *Node
	Right   *Node
	Parent  *Node
	IsLeaf  bool
	EntryID domain.EntryID
}

// Tree is the in-memory Merkle tree for one tenant. It is not safe for
// concurrent use; the owning trail serializes access.
type Tree struct {
	leaves []*Node
	root   *Node
	byID   map[domain.EntryID]*Node
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{byID: make(map[domain.EntryID]*Node)}
}

// Leaf pairs an entry identifier with its sealed hash, in insertion order.
// Used to rebuild a tree from persisted state.
type Leaf struct {
	EntryID domain.EntryID
	Hash    string
}

// NewFromLeaves reconstructs a tree from persisted leaf hashes in their
// original insertion order.
func NewFromLeaves(leaves []Leaf) *Tree {
	t := New()
	for _, l := range leaves {
		t.appendLeaf(l.Hash, l.EntryID)
	}
	t.rebuild()
	return t
}

// AddLeaf appends a new leaf for entryID and rebuilds the tree. Returns the
// inserted leaf node.
func (t *Tree) AddLeaf(hash string, entryID domain.EntryID) *Node {
	leaf := t.appendLeaf(hash, entryID)
	t.rebuild()
	return leaf
}

// RemoveLastLeaf drops the most recently added leaf and rebuilds. Used to
// roll the in-memory state back when the durable write for that leaf fails.
func (t *Tree) RemoveLastLeaf() {
	if len(t.leaves) == 0 {
		return
	}
	last := t.leaves[len(t.leaves)-1]
	delete(t.byID, last.EntryID)
	t.leaves = t.leaves[:len(t.leaves)-1]
	t.rebuild()
}

func (t *Tree) appendLeaf(hash string, entryID domain.EntryID) *Node {
	leaf := &Node{Hash: hash, IsLeaf: true, EntryID: entryID}
	t.leaves = append(t.leaves, leaf)
	t.byID[entryID] = leaf
	return leaf
}

// rebuild recomputes every interior node from the leaf list. Adjacent nodes
// pair left-to-right; an odd node at any level pairs with itself.
func (t *Tree) rebuild() {
	if len(t.leaves) == 0 {
		t.root = nil
		return
	}
	for _, leaf := range t.leaves {
		leaf.Parent = nil
	}

	level := make([]*Node, len(t.leaves))
	copy(level, t.leaves)

	for len(level) > 1 {
		next := make([]*Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left // odd node: self-paired
			if i+1 < len(level) {
				right = level[i+1]
			}
			parent := &Node{
				Hash:  hashPair(left.Hash, right.Hash),
				Left:  left,
				Right: right,
			}
			left.Parent = parent
			right.Parent = parent
			next = append(next, parent)
		}
		level = next
	}
	t.root = level[0]
}

// RootHash returns the current root hash, or "" for an empty tree. A
// single-leaf tree's root is the leaf hash itself.
func (t *Tree) RootHash() string {
	if t.root == nil {
		return ""
	}
	return t.root.Hash
}

// Height returns the tree height: 0 for empty and single-leaf trees,
// ceil(log2(leafCount)) otherwise.
func (t *Tree) Height() int {
	if t.root == nil {
		return 0
	}
	height := 0
	for n := t.root; !n.IsLeaf; n = n.Left {
		height++
	}
	return height
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int { return len(t.leaves) }

// HasLeaf reports whether the tree contains a leaf for entryID.
func (t *Tree) HasLeaf(entryID domain.EntryID) bool {
	_, ok := t.byID[entryID]
	return ok
}

// Path returns the inclusion proof for an entry: the ordered sibling hashes
// from the leaf up to the root, each tagged with its side. Empty for a
// single-leaf tree (the leaf is the root) and for unknown entries.
func (t *Tree) Path(entryID domain.EntryID) []ProofStep {
	leaf, ok := t.byID[entryID]
	if !ok {
		return nil
	}

	var path []ProofStep
	for n := leaf; n.Parent != nil; n = n.Parent {
		p := n.Parent
		if p.Left == n {
			// A self-paired node is both children; its sibling is itself.
			path = append(path, ProofStep{Hash: p.Right.Hash, Direction: DirectionRight})
		} else {
			path = append(path, ProofStep{Hash: p.Left.Hash, Direction: DirectionLeft})
		}
	}
	return path
}

// VerifyPath folds a proof onto a leaf hash and compares the result to the
// claimed root. It needs only the leaf hash, the path, and the root, so a
// holder of those three values can verify inclusion offline without the
// tree. Self-paired siblings need no special casing: the step simply carries
// the duplicated hash.
func VerifyPath(leafHash string, path []ProofStep, expectedRoot string) bool {
	if leafHash == "" || expectedRoot == "" {
		return false
	}
	acc := leafHash
	for _, step := range path {
		if step.Direction == DirectionLeft {
			acc = hashPair(step.Hash, acc)
		} else {
			acc = hashPair(acc, step.Hash)
		}
	}
	return acc == expectedRoot
}

// hashPair derives a parent hash from its children: SHA3-256 over the
// concatenated hex digests, hex encoded.
func hashPair(left, right string) string {
	sum := sha3.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
