package mapper

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/Secdorks/ipfixcol/decoders/ipfix"
)

// IdentityOf returns the effective information element identity of a field
// specifier: the enterprise number (or zero) and the element id with the
// enterprise bit already cleared by the walker.
func IdentityOf(field ipfix.FieldSpecifier) Identity {
	if !field.PenProvided {
		return Identity{0, field.Type}
	}
	return Identity{field.Pen, field.Type}
}

// Match classifies a template's field identity sequence against the vendor
// tables, in declaration order. The first matching vendor wins.
func Match(vendors []Vendor, fields []ipfix.FieldSpecifier) (Vendor, bool) {
	for _, vendor := range vendors {
		if vendor.matches(fields) {
			return vendor, true
		}
	}
	return Vendor{}, false
}

func (v Vendor) matches(fields []ipfix.FieldSpecifier) bool {
	if v.Positional != nil {
		var count int
		for _, field := range fields {
			if IdentityOf(field) == v.Positional.Shared {
				count++
			}
		}
		return count >= v.Positional.MinCount
	}
	for _, want := range v.Signature {
		found := false
		for _, field := range fields {
			if IdentityOf(field) == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(v.Signature) > 0
}

// Rewrite patches every matched field specifier of the record in the
// message buffer, replacing vendor identities with unified ones. Field
// lengths, field order and set lengths are preserved; the unified
// identities encode in the same specifier width as the vendor originals.
// Returns the number of specifiers rewritten.
func (v Vendor) Rewrite(msg []byte, record ipfix.TemplateRecord) (int, error) {
	var rewritten, occurrence int
	for _, field := range record.Fields {
		if !field.PenProvided {
			continue
		}
		identity := IdentityOf(field)

		var target Identity
		if v.Positional != nil {
			if identity != v.Positional.Shared {
				continue
			}
			occurrence++
			if occurrence > len(v.Positional.Order) {
				continue
			}
			target = v.Positional.Order[occurrence-1]
			if target.IsZero() {
				continue
			}
		} else {
			mapped, ok := v.mapping(identity)
			if !ok {
				continue
			}
			target = mapped
		}

		if err := ipfix.PatchIdentity(msg, field, target.Pen, target.Id); err != nil {
			return rewritten, err
		}
		rewritten++
	}
	return rewritten, nil
}

func (v Vendor) mapping(from Identity) (Identity, bool) {
	for _, m := range v.Mappings {
		if m.From == from {
			return m.To, true
		}
	}
	return Identity{}, false
}

// Digest condenses a record's field layout (identities and lengths, in
// order) into a value the memoization store can compare to detect a
// template redefinition under a reused id.
func Digest(fields []ipfix.FieldSpecifier) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for _, field := range fields {
		binary.BigEndian.PutUint32(b[0:], field.Pen)
		binary.BigEndian.PutUint16(b[4:], field.Type)
		binary.BigEndian.PutUint16(b[6:], field.Length)
		h.Write(b[:])
	}
	return h.Sum64()
}
