package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/vango-dev/waypoint/pkg/routepath"
)

// Node is a route frozen into a Tree. Nodes are never mutated after they are
// published; a change to a node's children publishes a copy.
type Node struct {
	// Index is the node's slot in the tree arena.
	Index int

	ID string

	// Path is the declared path pattern.
	Path string

	// FullPath is the pattern from the root. Index routes keep a trailing
	// slash ("/posts/").
	FullPath string

	// To is FullPath without the trailing slash, used for link building.
	To string

	Pattern routepath.Pattern

	// Parent is the parent's arena index, -1 for the root.
	Parent int

	// Children are arena indexes in declaration order.
	Children []int

	Depth int
	Route *Route

	// version counts changes to the candidate set below this node.
	version uint64
}

// IsRoot reports whether n is the tree root.
func (n *Node) IsRoot() bool { return n.Parent < 0 }

// Options returns the route declaration.
func (n *Node) Options() RouteOptions { return n.Route.opts }

// Pathless reports whether n contributes no path.
func (n *Node) Pathless() bool { return n.Pattern.Pathless }

// Tree is a versioned arena of routes. It is safe for concurrent use;
// AddRoutes and RemoveRoute may run while matches are in progress.
type Tree struct {
	mu      sync.RWMutex
	nodes   []*Node
	byID    map[string]int
	byPath  map[string]int
	version uint64

	rankMu sync.Mutex
	ranks  map[int]rankEntry
}

type rankEntry struct {
	version    uint64
	candidates []candidate
}

// NewTree freezes a declared route tree. All declaration problems are
// reported together.
func NewTree(root *Route) (*Tree, error) {
	if root == nil || !root.root {
		return nil, &ValidationError{
			Type:    ErrorInvalidRoot,
			Message: "tree must be built from a route declared with NewRootRoute",
		}
	}

	t := &Tree{ranks: make(map[int]rankEntry)}
	b := t.builder()

	rootNode := &Node{
		Index:    0,
		ID:       RootRouteID,
		FullPath: "/",
		To:       "/",
		Pattern:  routepath.Pattern{Raw: "", Pathless: true},
		Parent:   -1,
		Route:    root,
	}
	b.nodes = append(b.nodes, rootNode)
	b.byID[RootRouteID] = 0
	b.onPath[root] = true
	b.seen[root] = true
	for _, child := range root.children {
		b.insert(0, child)
	}

	if err := b.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	b.commit()
	return t, nil
}

// MustNewTree is like NewTree but panics on error.
func MustNewTree(root *Route) *Tree {
	t, err := NewTree(root)
	if err != nil {
		panic(err)
	}
	return t
}

// Version increments on every structural change.
func (t *Tree) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[0]
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byID[id]; ok {
		return t.nodes[i]
	}
	return nil
}

// NodeAt returns the node at an arena index, or nil if removed.
func (t *Tree) NodeAt(i int) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.nodes) {
		return nil
	}
	return t.nodes[i]
}

// NodeByPath looks a route up by its link path (trailing slash ignored).
// When a parent and its index route share a path, the index route wins.
func (t *Tree) NodeByPath(path string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byPath[routepath.TrimPathRight(path)]; ok {
		return t.nodes[i]
	}
	return nil
}

// Ancestors returns the chain from the root to id, inclusive.
func (t *Tree) Ancestors(id string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		return nil
	}
	var chain []*Node
	for i >= 0 {
		n := t.nodes[i]
		chain = append(chain, n)
		i = n.Parent
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// Children returns the direct children of id in declaration order.
func (t *Tree) Children(id string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(t.nodes[i].Children))
	for _, c := range t.nodes[i].Children {
		out = append(out, t.nodes[c])
	}
	return out
}

// Walk visits nodes depth-first in declaration order until fn returns false.
func (t *Tree) Walk(fn func(n *Node) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walk(0, fn)
}

func (t *Tree) walk(i int, fn func(n *Node) bool) bool {
	n := t.nodes[i]
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !t.walk(c, fn) {
			return false
		}
	}
	return true
}

// Len returns the number of routes, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// AddRoutes attaches routes below parentID. On error the tree is unchanged.
func (t *Tree) AddRoutes(parentID string, routes ...*Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.byID[parentID]
	if !ok {
		return &ValidationError{
			Type:     ErrorUnknownRoute,
			Message:  fmt.Sprintf("parent route %q does not exist", parentID),
			RouteIDs: []string{parentID},
		}
	}

	b := t.builder()
	for _, n := range t.nodes {
		if n != nil {
			b.seen[n.Route] = true
		}
	}
	for _, r := range routes {
		b.insert(parent, r)
	}
	if err := b.errs.ErrorOrNil(); err != nil {
		return err
	}
	b.commit()
	return nil
}

// RemoveRoute detaches id and its whole subtree.
func (t *Tree) RemoveRoute(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return &ValidationError{
			Type:     ErrorUnknownRoute,
			Message:  fmt.Sprintf("route %q does not exist", id),
			RouteIDs: []string{id},
		}
	}
	if i == 0 {
		return &ValidationError{Type: ErrorInvalidRoot, Message: "the root route cannot be removed"}
	}

	b := t.builder()
	var drop func(int)
	drop = func(j int) {
		n := b.nodes[j]
		for _, c := range n.Children {
			drop(c)
		}
		delete(b.byID, n.ID)
		b.nodes[j] = nil
		b.removed = append(b.removed, j)
	}
	parent := b.nodes[i].Parent
	drop(i)

	p := b.writable(parent)
	kept := make([]int, 0, len(p.Children))
	for _, c := range p.Children {
		if c != i {
			kept = append(kept, c)
		}
	}
	p.Children = kept
	b.touch(parent)

	b.byPath = make(map[string]int, len(b.byID))
	for _, n := range b.nodes {
		if n != nil {
			b.indexPath(n)
		}
	}
	b.commit()
	return nil
}

// builder stages a structural change so that a failed change leaves the
// tree untouched.
type builder struct {
	t       *Tree
	nodes   []*Node
	byID    map[string]int
	byPath  map[string]int
	copied  map[int]bool
	touched map[int]bool
	removed []int
	onPath  map[*Route]bool
	seen    map[*Route]bool
	errs    *multierror.Error
}

func (t *Tree) builder() *builder {
	b := &builder{
		t:       t,
		nodes:   append([]*Node(nil), t.nodes...),
		byID:    make(map[string]int, len(t.byID)),
		byPath:  make(map[string]int, len(t.byPath)),
		copied:  make(map[int]bool),
		touched: make(map[int]bool),
		onPath:  make(map[*Route]bool),
		seen:    make(map[*Route]bool),
	}
	for k, v := range t.byID {
		b.byID[k] = v
	}
	for k, v := range t.byPath {
		b.byPath[k] = v
	}
	return b
}

// writable returns a private copy of node i, safe to modify.
func (b *builder) writable(i int) *Node {
	if !b.copied[i] {
		cp := *b.nodes[i]
		cp.Children = append([]int(nil), cp.Children...)
		b.nodes[i] = &cp
		b.copied[i] = true
	}
	return b.nodes[i]
}

// touch marks the candidate set below i as changed. Pathless nodes forward
// the change to their parent, whose candidates include theirs.
func (b *builder) touch(i int) {
	for i >= 0 {
		b.touched[i] = true
		n := b.nodes[i]
		if n.IsRoot() || !n.Pattern.Pathless {
			return
		}
		i = n.Parent
	}
}

func (b *builder) fail(err error) {
	b.errs = multierror.Append(b.errs, err)
}

func (b *builder) insert(parent int, r *Route) {
	if r == nil {
		return
	}
	parentNode := b.nodes[parent]

	if r.root {
		b.fail(&ValidationError{
			Type:     ErrorInvalidRoot,
			Message:  "a root route cannot be nested",
			RouteIDs: []string{parentNode.ID},
		})
		return
	}
	if b.onPath[r] {
		b.fail(&ValidationError{
			Type:     ErrorRouteCycle,
			Message:  fmt.Sprintf("route %q is its own ancestor", r.opts.Path),
			RouteIDs: []string{parentNode.ID},
		})
		return
	}
	if b.seen[r] {
		b.fail(&ValidationError{
			Type:     ErrorDuplicateRouteID,
			Message:  fmt.Sprintf("route %q is declared more than once", r.opts.Path),
			RouteIDs: []string{parentNode.ID},
		})
		return
	}
	b.seen[r] = true

	pattern, err := routepath.Parse(r.opts.Path)
	if err == nil && r.opts.Path == "" && r.opts.ID != "" {
		pattern = routepath.Pattern{Pathless: true}
	}
	if err != nil {
		b.fail(&ValidationError{
			Type:    ErrorInvalidPattern,
			Message: fmt.Sprintf("invalid path pattern below %q", parentNode.ID),
			Path:    r.opts.Path,
			Err:     err,
		})
		return
	}

	id := routeID(parentNode, r.opts, pattern)
	if _, dup := b.byID[id]; dup {
		b.fail(&ValidationError{
			Type:     ErrorDuplicateRouteID,
			Message:  fmt.Sprintf("duplicate route id %q", id),
			RouteIDs: []string{id},
			Path:     r.opts.Path,
		})
		return
	}

	if name := b.shadowedParam(parent, pattern); name != "" {
		b.fail(&ValidationError{
			Type:     ErrorDuplicateParam,
			Message:  fmt.Sprintf("param %q of route %q is already bound by an ancestor", name, id),
			RouteIDs: []string{id},
			Path:     r.opts.Path,
		})
		return
	}

	fullPath := parentNode.FullPath
	if !pattern.Pathless {
		fullPath = routepath.JoinPaths(parentNode.FullPath, pattern.Key())
	}

	n := &Node{
		Index:    len(b.nodes),
		ID:       id,
		Path:     r.opts.Path,
		FullPath: fullPath,
		To:       routepath.TrimPathRight(fullPath),
		Pattern:  pattern,
		Parent:   parent,
		Depth:    parentNode.Depth + 1,
		Route:    r,
	}
	b.nodes = append(b.nodes, n)
	b.copied[n.Index] = true
	b.byID[id] = n.Index
	b.indexPath(n)

	p := b.writable(parent)
	p.Children = append(p.Children, n.Index)
	b.touch(parent)

	b.onPath[r] = true
	for _, child := range r.children {
		b.insert(n.Index, child)
	}
	delete(b.onPath, r)
}

func (b *builder) indexPath(n *Node) {
	if n.IsRoot() || n.Pattern.Pathless {
		return
	}
	if _, ok := b.byPath[n.To]; !ok || strings.HasSuffix(n.FullPath, "/") {
		b.byPath[n.To] = n.Index
	}
}

func (b *builder) shadowedParam(parent int, p routepath.Pattern) string {
	names := p.ParamNames()
	if len(names) == 0 {
		return ""
	}
	for i := parent; i >= 0; i = b.nodes[i].Parent {
		for _, have := range b.nodes[i].Pattern.ParamNames() {
			for _, name := range names {
				if name == have {
					return name
				}
			}
		}
	}
	return ""
}

func (b *builder) commit() {
	t := b.t
	version := t.version + 1
	for i := range b.touched {
		if b.nodes[i] != nil {
			b.writable(i).version = version
		}
	}
	t.nodes = b.nodes
	t.byID = b.byID
	t.byPath = b.byPath
	t.version = version

	t.rankMu.Lock()
	for i := range b.touched {
		delete(t.ranks, i)
	}
	for _, i := range b.removed {
		delete(t.ranks, i)
	}
	t.rankMu.Unlock()
}

// routeID derives a node id from its parent's id and the id option or path.
func routeID(parent *Node, opts RouteOptions, p routepath.Pattern) string {
	custom := opts.ID
	if custom == "" {
		custom = strings.TrimLeft(opts.Path, "/")
		if p.Index && len(p.Segments) == 0 {
			custom = "/"
		}
	}
	prefix := parent.ID
	if parent.IsRoot() {
		prefix = ""
	}
	return routepath.JoinPaths("/", prefix, custom)
}
