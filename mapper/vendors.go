// Package mapper recognizes vendor-specific encodings of HTTP information
// elements (hostname, URL, user agent) inside IPFIX template records and
// rewrites them in place to one unified identity set, so that analysis
// applications can always rely on the unified set of fields.
package mapper

import (
	"fmt"
)

// Identity is one IPFIX information element identity. A zero Pen denotes
// an IANA standard element.
type Identity struct {
	Pen uint32 `json:"pen"`
	Id  uint16 `json:"id"`
}

func (i Identity) String() string {
	return fmt.Sprintf("e%did%d", i.Pen, i.Id)
}

// IsZero reports whether the identity is unset. Used in positional rules
// to mark occurrences that must not be rewritten.
func (i Identity) IsZero() bool {
	return i.Pen == 0 && i.Id == 0
}

// Mapping rewrites one vendor identity to its unified counterpart.
type Mapping struct {
	From Identity
	To   Identity
}

// Private enterprise numbers of the supported vendor encodings.
const (
	PenCisco   = 9
	PenMasaryk = 16982
	PenNtop    = 35632
	PenInvea   = 39499

	// PenUnified is the PEN of the unified HTTP field set.
	PenUnified = 44913

	// PenNetFlowV9 is the sentinel PEN assigned by the upstream NetFlow v9
	// conversion to enterprise elements that had no PEN on the wire.
	PenNetFlowV9 = 0xFFFFFFFF
)

// The unified HTTP field identities every supported encoding maps to.
var (
	UnifiedHTTPHostname  = Identity{PenUnified, 20}
	UnifiedHTTPURL       = Identity{PenUnified, 21}
	UnifiedHTTPUserAgent = Identity{PenUnified, 22}
)

// PositionalRule disambiguates an encoding that reuses a single identity
// for several meanings. The meaning of the n-th occurrence of Shared
// within a record (in field order) is given by Order[n-1]; a zero entry,
// and any occurrence past the end of Order, is left untouched.
type PositionalRule struct {
	Shared   Identity
	MinCount int
	Order    []Identity
}

// Vendor is one supported vendor encoding: the identities a template must
// exhibit to be classified as this vendor, and the rewrites to apply.
// Exactly one of Mappings and Positional is used.
type Vendor struct {
	Name       string
	Pen        uint32
	Signature  []Identity
	Mappings   []Mapping
	Positional *PositionalRule
}

// DefaultVendors returns the built-in vendor tables in recognition
// priority order. No signature is a strict subset of another; the order
// exists to make classification deterministic anyway.
func DefaultVendors() []Vendor {
	return []Vendor{
		{
			// Cisco exports four instances of e9id12235, always in the
			// order URL, hostname, user agent, unknown. The fourth
			// instance has no unified counterpart and stays as is.
			Name:      "cisco",
			Pen:       PenCisco,
			Signature: []Identity{{PenCisco, 12235}},
			Positional: &PositionalRule{
				Shared:   Identity{PenCisco, 12235},
				MinCount: 4,
				Order: []Identity{
					UnifiedHTTPURL,
					UnifiedHTTPHostname,
					UnifiedHTTPUserAgent,
					{},
				},
			},
		},
		{
			Name:      "invea-tech",
			Pen:       PenInvea,
			Signature: []Identity{{PenInvea, 1}, {PenInvea, 2}, {PenInvea, 20}},
			Mappings: []Mapping{
				{Identity{PenInvea, 1}, UnifiedHTTPHostname},
				{Identity{PenInvea, 2}, UnifiedHTTPURL},
				{Identity{PenInvea, 20}, UnifiedHTTPUserAgent},
			},
		},
		{
			Name:      "masaryk",
			Pen:       PenMasaryk,
			Signature: []Identity{{PenMasaryk, 501}, {PenMasaryk, 502}, {PenMasaryk, 504}},
			Mappings: []Mapping{
				{Identity{PenMasaryk, 501}, UnifiedHTTPHostname},
				{Identity{PenMasaryk, 502}, UnifiedHTTPURL},
				{Identity{PenMasaryk, 504}, UnifiedHTTPUserAgent},
			},
		},
		{
			Name:      "ntop",
			Pen:       PenNtop,
			Signature: []Identity{{PenNtop, 187}, {PenNtop, 180}, {PenNtop, 183}},
			Mappings: []Mapping{
				{Identity{PenNtop, 187}, UnifiedHTTPHostname},
				{Identity{PenNtop, 180}, UnifiedHTTPURL},
				{Identity{PenNtop, 183}, UnifiedHTTPUserAgent},
			},
		},
		{
			// ntop again, as rendered by the NetFlow v9 conversion:
			// original ids 57659/57652/57655 arrive with the enterprise
			// bit cleared under the conversion sentinel PEN.
			Name:      "ntop-v9",
			Pen:       PenNetFlowV9,
			Signature: []Identity{{PenNetFlowV9, 24891}, {PenNetFlowV9, 24884}, {PenNetFlowV9, 24887}},
			Mappings: []Mapping{
				{Identity{PenNetFlowV9, 24891}, UnifiedHTTPHostname},
				{Identity{PenNetFlowV9, 24884}, UnifiedHTTPURL},
				{Identity{PenNetFlowV9, 24887}, UnifiedHTTPUserAgent},
			},
		},
	}
}
