package message

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OptionID is a CoAP option number (RFC 7252 §5.10, RFC 7641, RFC 7959).
type OptionID uint16

// ValueFormat describes how an option's value is encoded on the wire.
type ValueFormat uint8

const (
	ValueEmpty ValueFormat = iota
	ValueOpaque
	ValueUint
	ValueString
)

// Option numbers this module understands natively. Odd numbers are
// "critical" per RFC 7252 §5.4.6: an endpoint that doesn't understand a
// critical option must reject the message.
const (
	IfMatch       OptionID = 1
	URIHost       OptionID = 3
	ETag          OptionID = 4
	IfNoneMatch   OptionID = 5
	Observe       OptionID = 6
	URIPort       OptionID = 7
	LocationPath  OptionID = 8
	URIPath       OptionID = 11
	ContentFormat OptionID = 12
	MaxAge        OptionID = 14
	URIQuery      OptionID = 15
	Accept        OptionID = 17
	LocationQuery OptionID = 20
	Block2        OptionID = 23
	Block1        OptionID = 27
	Size2         OptionID = 28
	ProxyURI      OptionID = 35
	ProxyScheme   OptionID = 39
	Size1         OptionID = 60
	NoResponse    OptionID = 258
)

// IsCritical reports whether an unrecognized option of this number must
// cause the message to be rejected (RFC 7252 §5.4.1: odd option numbers).
func (id OptionID) IsCritical() bool {
	return id%2 == 1
}

// IsRepeatable reports whether the option may appear more than once
// (RFC 7252 §5.4.5). Uri-Path/Uri-Query/Location-Path/Location-Query/ETag/
// If-Match are repeatable; most others are not.
func (id OptionID) IsRepeatable() bool {
	switch id {
	case URIPath, URIQuery, LocationPath, LocationQuery, ETag, IfMatch:
		return true
	}
	return false
}

func (id OptionID) valueFormat() ValueFormat {
	switch id {
	case IfNoneMatch:
		return ValueEmpty
	case ETag, IfMatch, Block1, Block2:
		return ValueOpaque
	case URIPort, ContentFormat, MaxAge, Accept, Size1, Size2, Observe, NoResponse:
		return ValueUint
	case URIHost, LocationPath, URIPath, URIQuery, LocationQuery, ProxyURI, ProxyScheme:
		return ValueString
	default:
		return ValueOpaque
	}
}

func (id OptionID) String() string {
	if s, ok := optionNames[id]; ok {
		return s
	}
	return fmt.Sprintf("Option(%d)", id)
}

var optionNames = map[OptionID]string{
	IfMatch: "If-Match", URIHost: "Uri-Host", ETag: "ETag", IfNoneMatch: "If-None-Match",
	Observe: "Observe", URIPort: "Uri-Port", LocationPath: "Location-Path", URIPath: "Uri-Path",
	ContentFormat: "Content-Format", MaxAge: "Max-Age", URIQuery: "Uri-Query", Accept: "Accept",
	LocationQuery: "Location-Query", Block2: "Block2", Block1: "Block1", Size2: "Size2",
	ProxyURI: "Proxy-Uri", ProxyScheme: "Proxy-Scheme", Size1: "Size1", NoResponse: "No-Response",
}

// Option is a single tagged value on a Message.
type Option struct {
	ID    OptionID
	Value []byte
}

// Options is the ordered sequence of a Message's options. It is kept sorted
// by ID, mirroring the wire requirement that options are transmitted in
// strictly increasing option-number order (the delta encoding depends on
// it).
type Options []Option

// Clone returns a deep copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	c := make(Options, len(o))
	for i, opt := range o {
		c[i] = Option{ID: opt.ID, Value: append([]byte(nil), opt.Value...)}
	}
	return c
}

// Add appends an option and keeps Options sorted by ID (stable, so options
// with the same ID preserve relative insertion order as RFC 7252 requires
// for repeatable options like Uri-Path).
func (o Options) Add(opt Option) Options {
	o = append(o, opt)
	sort.SliceStable(o, func(i, j int) bool { return o[i].ID < o[j].ID })
	return o
}

// Remove drops all options with the given ID.
func (o Options) Remove(id OptionID) Options {
	out := o[:0:0]
	for _, opt := range o {
		if opt.ID != id {
			out = append(out, opt)
		}
	}
	return out
}

// Find returns the first option with the given ID.
func (o Options) Find(id OptionID) (Option, bool) {
	for _, opt := range o {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// FindAll returns every option with the given ID, in wire order.
func (o Options) FindAll(id OptionID) []Option {
	var out []Option
	for _, opt := range o {
		if opt.ID == id {
			out = append(out, opt)
		}
	}
	return out
}

// GetString returns the string value of the first option with the given ID.
func (o Options) GetString(id OptionID) (string, error) {
	opt, ok := o.Find(id)
	if !ok {
		return "", ErrOptionNotFound
	}
	return string(opt.Value), nil
}

// GetUint32 decodes the uint value of the first option with the given ID
// (CoAP uints are big-endian, variable length, no leading zero bytes).
func (o Options) GetUint32(id OptionID) (uint32, error) {
	opt, ok := o.Find(id)
	if !ok {
		return 0, ErrOptionNotFound
	}
	var v uint32
	for _, b := range opt.Value {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

func encodeUint32(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// SetUint32 replaces (or adds) the sole occurrence of a non-repeatable
// uint-valued option.
func (o Options) SetUint32(id OptionID, v uint32) Options {
	o = o.Remove(id)
	return o.Add(Option{ID: id, Value: encodeUint32(v)})
}

// SetString replaces the sole occurrence of a non-repeatable string-valued
// option.
func (o Options) SetString(id OptionID, v string) Options {
	o = o.Remove(id)
	return o.Add(Option{ID: id, Value: []byte(v)})
}

// AddString appends a repeatable string-valued option (e.g. a Uri-Path
// segment or Uri-Query pair) without removing existing occurrences.
func (o Options) AddString(id OptionID, v string) Options {
	return o.Add(Option{ID: id, Value: []byte(v)})
}

// Path reassembles the Uri-Path segments into a single "/"-joined path, the
// way the teacher's coap_http.go relies on r.Options.Path() doing.
func (o Options) Path() (string, error) {
	segs := o.FindAll(URIPath)
	if len(segs) == 0 {
		return "", nil
	}
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = string(s.Value)
	}
	return "/" + strings.Join(parts, "/"), nil
}

// SetPath replaces the Uri-Path options with the segments of p.
func (o Options) SetPath(p string) Options {
	o = o.Remove(URIPath)
	p = strings.Trim(p, "/")
	if p == "" {
		return o
	}
	for _, seg := range strings.Split(p, "/") {
		o = o.AddString(URIPath, seg)
	}
	return o
}

// Queries returns the raw "key=value" Uri-Query option values.
func (o Options) Queries() ([]string, error) {
	opts := o.FindAll(URIQuery)
	if len(opts) == 0 {
		return nil, ErrOptionNotFound
	}
	out := make([]string, len(opts))
	for i, opt := range opts {
		out[i] = string(opt.Value)
	}
	return out, nil
}

// ContentFormat returns the Content-Format option value.
func (o Options) ContentFormat() (MediaType, error) {
	v, err := o.GetUint32(ContentFormat)
	if err != nil {
		return 0, err
	}
	return MediaType(v), nil
}

// SetContentFormat sets the Content-Format option.
func (o Options) SetContentFormat(m MediaType) Options {
	return o.SetUint32(ContentFormat, uint32(m))
}

// GetObserve returns the Observe option value (0 = register, 1 = deregister,
// >1 = notification sequence number).
func (o Options) GetObserve() (uint32, error) {
	return o.GetUint32(Observe)
}

// SetObserve sets the Observe option to the given sequence number.
func (o Options) SetObserve(seq uint32) Options {
	return o.SetUint32(Observe, seq&0xFFFFFF) // 24-bit per RFC 7641 §3.2
}

// BlockValue is the decoded {num, more, szx} triple of a Block1/Block2
// option (RFC 7959 §2.2).
type BlockValue struct {
	Num  uint32
	More bool
	SZX  uint8 // 0-6, block size = 2^(SZX+4)
}

// Size returns the block size in bytes for the SZX exponent.
func (b BlockValue) Size() int {
	return 1 << (b.SZX + 4)
}

// EncodeBlockOption packs a BlockValue into its wire uint representation.
func EncodeBlockOption(b BlockValue) uint32 {
	v := b.Num << 4
	if b.More {
		v |= 0x8
	}
	v |= uint32(b.SZX) & 0x7
	return v
}

// DecodeBlockOption unpacks a wire uint into a BlockValue.
func DecodeBlockOption(v uint32) BlockValue {
	return BlockValue{
		Num:  v >> 4,
		More: v&0x8 != 0,
		SZX:  uint8(v & 0x7),
	}
}

// GetBlock1/GetBlock2 decode the Block1/Block2 options if present.
func (o Options) GetBlock1() (BlockValue, bool) {
	v, err := o.GetUint32(Block1)
	if err != nil {
		return BlockValue{}, false
	}
	return DecodeBlockOption(v), true
}

func (o Options) GetBlock2() (BlockValue, bool) {
	v, err := o.GetUint32(Block2)
	if err != nil {
		return BlockValue{}, false
	}
	return DecodeBlockOption(v), true
}

func (o Options) SetBlock1(b BlockValue) Options {
	return o.SetUint32(Block1, EncodeBlockOption(b))
}

func (o Options) SetBlock2(b BlockValue) Options {
	return o.SetUint32(Block2, EncodeBlockOption(b))
}

// HasBlockOption reports whether either Block1 or Block2 is present, the
// trigger the Matcher uses to route into the blockwise ongoing-exchange
// path.
func (o Options) HasBlockOption() bool {
	_, ok1 := o.Find(Block1)
	_, ok2 := o.Find(Block2)
	return ok1 || ok2
}

// UnknownCritical returns the first option whose ID is both critical
// (odd-numbered) and not in the known set, per RFC 7252 §5.4.1. Decode
// rejects messages carrying one.
func (o Options) UnknownCritical() (OptionID, bool) {
	for _, opt := range o {
		if _, known := optionNames[opt.ID]; known {
			continue
		}
		if opt.ID == NoResponse {
			continue
		}
		if opt.ID.IsCritical() {
			return opt.ID, true
		}
	}
	return OptionID(0), false
}

var errBadOptionOrder = errors.New("coap: options out of order")

// ValidateOrder checks options are in strictly non-decreasing ID order
// (equal IDs are allowed for repeatable options), as RFC 7252 §3.1 requires
// on the wire.
func (o Options) ValidateOrder() error {
	for i := 1; i < len(o); i++ {
		if o[i].ID < o[i-1].ID {
			return errBadOptionOrder
		}
	}
	return nil
}

// MediaType is the Content-Format registry (RFC 7252 §12.3), extended per
// SPEC_FULL.md with the common subset a resource tree actually negotiates.
type MediaType uint16

const (
	TextPlain  MediaType = 0
	AppLinkFormat MediaType = 40
	AppOctets  MediaType = 42
	AppJSON    MediaType = 50
	AppCBOR    MediaType = 60
)

func (m MediaType) String() string {
	switch m {
	case TextPlain:
		return "text/plain"
	case AppLinkFormat:
		return "application/link-format"
	case AppOctets:
		return "application/octet-stream"
	case AppJSON:
		return "application/json"
	case AppCBOR:
		return "application/cbor"
	default:
		return "application/octet-stream;fmt=" + strconv.Itoa(int(m))
	}
}
