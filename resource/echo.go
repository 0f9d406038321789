package resource

import (
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
	"github.com/cloudbridge/coap/transcode"
)

// MountDebugEcho installs a /debug/echo resource that echoes the request
// body back, transcoding between JSON and CBOR representations (SPEC_FULL.md
// DOMAIN STACK: "a /debug/echo resource" exercising the teacher's JSON<->CBOR
// bridge shape). A POST with Content-Format application/cbor gets its body
// converted to JSON and back before being echoed, proving the round trip
// through the same codec a low-bandwidth client would rely on.
func MountDebugEcho(root *Resource, codec *transcode.Codec) {
	echo := root.Child("debug").Child("echo")
	echo.Attrs.ContentType = message.AppCBOR
	echo.Post(func(ctx *RequestContext) {
		format, err := ctx.Request.Options.ContentFormat()
		if err != nil {
			format = message.AppOctets
		}
		body := ctx.Request.Payload
		if format == message.AppCBOR {
			asJSON, err := codec.CBORBytesToJSON(body)
			if err != nil {
				ctx.Respond(codes.BadRequest, []byte(err.Error()), message.TextPlain)
				return
			}
			asCBOR, err := codec.JSONBytesToCBOR(asJSON)
			if err != nil {
				ctx.Respond(codes.InternalServerError, []byte(err.Error()), message.TextPlain)
				return
			}
			ctx.Respond(codes.Content, asCBOR, message.AppCBOR)
			return
		}
		ctx.Respond(codes.Content, body, format)
	})
}
