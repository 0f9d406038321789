package resource

import (
	"github.com/cloudbridge/coap/linkformat"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

// MountWellKnownCore installs the RFC 6690 discovery resource at
// /.well-known/core, listing every Visible resource under root as one
// link-format document.
func MountWellKnownCore(root *Resource) {
	wk := root.Child(".well-known").Child("core")
	wk.Attrs.ContentType = message.AppLinkFormat
	wk.Get(func(ctx *RequestContext) {
		var links []linkformat.Link
		root.Walk(func(r *Resource) {
			if r == wk || !r.Visible || r.Path() == "/" {
				return
			}
			l := linkformat.Link{Target: r.Path()}
			for _, rt := range r.Attrs.ResourceTypes {
				l.Add("rt", rt)
			}
			for _, ifc := range r.Attrs.Interfaces {
				l.Add("if", ifc)
			}
			for _, rel := range r.Attrs.Rel {
				l.Add("rel", rel)
			}
			if r.Attrs.Title != "" {
				l.Add("title", r.Attrs.Title)
			}
			if r.Attrs.SizeEstimate > 0 {
				l.Add("sz", linkformat.SizeString(r.Attrs.SizeEstimate))
			}
			if r.Observable {
				l.Add("obs", "1")
			}
			links = append(links, l)
		})
		body := []byte(linkformat.Serialize(links))
		ctx.Respond(codes.Content, body, message.AppLinkFormat)
	})
}
