package resource

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
)

// JSONPatchFilter rewrites a single JSON field in a response body before it
// is sent, grounded on the teacher's cmd/proxy/proxy.go writeResponse: "read
// a JSON field with gjson, replace it with sjson, re-marshal" (there, used
// to rewrite `homeserver.base_url` before proxying a response onward).
type JSONPatchFilter struct {
	// Path is a gjson/sjson dot-path, e.g. "well_known.m\\.homeserver.base_url".
	Path string
	// Replacement is the new value substituted at Path, if it exists.
	Replacement string
}

// Apply rewrites every field named by a filter that's present in body,
// leaving absent fields untouched (mirroring proxy.go's "if baseURL.Exists()"
// guard rather than failing on a missing key).
func Apply(body []byte, filters []JSONPatchFilter) []byte {
	for _, f := range filters {
		if !gjson.GetBytes(body, f.Path).Exists() {
			continue
		}
		rewritten, err := sjson.SetBytes(body, f.Path, f.Replacement)
		if err != nil {
			continue
		}
		body = rewritten
	}
	return body
}

// RespondJSON applies filters to body and sends it as application/json,
// the resource-handler counterpart of proxy.go's body rewrite.
func (c *RequestContext) RespondJSON(code codes.Code, body []byte, filters ...JSONPatchFilter) {
	c.Respond(code, Apply(body, filters), message.AppJSON)
}
