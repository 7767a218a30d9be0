package ipfix

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PatchIdentity rewrites the (PEN, element id) identity of an
// enterprise-scoped field specifier in place in the message buffer the
// field was parsed from. The encoded field length and the enterprise bit
// are preserved, so set and record lengths are unaffected.
func PatchIdentity(msg []byte, field FieldSpecifier, pen uint32, elementId uint16) error {
	if !field.PenProvided {
		return fmt.Errorf("field %s: cannot patch a non-enterprise specifier", field.String())
	}
	if field.Offset < 0 || field.Offset+8 > len(msg) {
		return fmt.Errorf("field %s: offset %d out of bounds", field.String(), field.Offset)
	}
	binary.BigEndian.PutUint16(msg[field.Offset:], elementId|enterpriseBit)
	binary.BigEndian.PutUint32(msg[field.Offset+4:], pen)
	return nil
}

func WriteU16(buf *bytes.Buffer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func WriteU32(buf *bytes.Buffer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := buf.Write(b[:])
	return err
}
