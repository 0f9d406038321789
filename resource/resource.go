// Package resource implements the URI-path trie of resources: routing incoming requests to handler callbacks and managing
// observe relations. It is grounded on the teacher's coap_http.go
// (CoAPHTTPHandler dispatch: find a mapped path, consult a Logger, run a
// handler) generalized from a fixed HTTP-bridge handler to an arbitrary
// tree of named resources with per-node method handlers.
package resource

import (
	"strings"
	"sync"

	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

// Attributes mirrors the link-format attributes RFC 6690 §2 defines for a
// resource (title, resource-type, interface, content-type, size estimate).
// ResourceTypes/Interfaces/Rel hold the space-separated multi-value
// attributes (rt/if/rel); Title/SizeEstimate are single-occurrence.
type Attributes struct {
	Title         string
	ResourceTypes []string
	Interfaces    []string
	Rel           []string
	ContentType   message.MediaType
	SizeEstimate  int
}

// HandlerFunc handles one method against a Resource. ctx carries the
// request, the owning Exchange, and a Respond helper.
type HandlerFunc func(ctx *RequestContext)

// Resource is one node of the rooted, ordered tree: addressable by path segment, carrying visibility, observable
// flag, attributes, and handler callbacks per method.
type Resource struct {
	name     string
	parent   *Resource
	children map[string]*Resource

	Visible    bool
	Observable bool
	Attrs      Attributes

	handlers map[codes.Code]HandlerFunc

	mu        sync.Mutex
	observers map[string]*relationEntry // token string -> relation entry
}

// New creates a detached resource node named name (the empty string names
// the tree root).
func New(name string) *Resource {
	return &Resource{
		name:     name,
		children: make(map[string]*Resource),
		Visible:  true,
		handlers: make(map[codes.Code]HandlerFunc),
	}
}

// Handle registers the handler invoked for method on this resource.
func (r *Resource) Handle(method codes.Code, fn HandlerFunc) *Resource {
	r.handlers[method] = fn
	return r
}

// Get/Post/Put/Delete are convenience wrappers around Handle for the
// methods every constrained-device resource actually uses.
func (r *Resource) Get(fn HandlerFunc) *Resource    { return r.Handle(codes.GET, fn) }
func (r *Resource) Post(fn HandlerFunc) *Resource   { return r.Handle(codes.POST, fn) }
func (r *Resource) Put(fn HandlerFunc) *Resource    { return r.Handle(codes.PUT, fn) }
func (r *Resource) Delete(fn HandlerFunc) *Resource { return r.Handle(codes.DELETE, fn) }

// Child adds (or returns the existing) immediate child named seg.
func (r *Resource) Child(seg string) *Resource {
	if c, ok := r.children[seg]; ok {
		return c
	}
	c := New(seg)
	c.parent = r
	r.children[seg] = c
	return c
}

// Add creates (walking/creating intermediate segments as needed) and
// returns the resource at path, e.g. "/sensors/temp".
func (r *Resource) Add(path string) *Resource {
	node := r
	for _, seg := range splitPath(path) {
		node = node.Child(seg)
	}
	return node
}

// Lookup walks path from r and returns the matching node, or nil.
func (r *Resource) Lookup(path string) *Resource {
	node := r
	for _, seg := range splitPath(path) {
		child, ok := node.children[seg]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// Path reconstructs this resource's full "/"-joined path from the root.
func (r *Resource) Path() string {
	if r.parent == nil {
		return "/"
	}
	var segs []string
	for n := r; n.parent != nil; n = n.parent {
		segs = append([]string{n.name}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

// Walk visits r and every descendant, depth-first, in an unspecified child
// order (used by the link-format /.well-known/core listing).
func (r *Resource) Walk(fn func(*Resource)) {
	fn(r)
	for _, c := range r.children {
		c.Walk(fn)
	}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// handlerFor returns the handler bound to method, and whether the method is
// allowed at all on this resource.
func (r *Resource) handlerFor(method codes.Code) (HandlerFunc, bool) {
	h, ok := r.handlers[method]
	return h, ok
}
