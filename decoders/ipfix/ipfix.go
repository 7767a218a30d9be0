package ipfix

import (
	"encoding/binary"
	"fmt"
)

var (
	ErrTruncated = fmt.Errorf("message truncated")
)

type DecoderError struct {
	Decoder string
	Err     error
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("%s %s", e.Decoder, e.Err.Error())
}

func (e *DecoderError) Unwrap() error {
	return e.Err
}

type SetError struct {
	SetId uint16
	Err   error
}

func (e *SetError) Error() string {
	return fmt.Sprintf("[set:%d] %s", e.SetId, e.Err.Error())
}

func (e *SetError) Unwrap() error {
	return e.Err
}

// DecodeMessage parses the structural shape of one IPFIX message: the
// message header, every set header, and the template records of template
// and options template sets. Data sets are located but not interpreted.
//
// Decoding is best effort. On a structural error the sets parsed so far
// are returned together with the error; the unparsed tail of the message
// is skipped. The buffer is never modified.
func DecodeMessage(msg []byte) (*Message, error) {
	packet := &Message{}
	if len(msg) < MessageHeaderLength {
		return packet, &DecoderError{"IPFIX header", fmt.Errorf("%w: %d bytes", ErrTruncated, len(msg))}
	}

	packet.Version = binary.BigEndian.Uint16(msg[0:])
	packet.Length = binary.BigEndian.Uint16(msg[2:])
	packet.ExportTime = binary.BigEndian.Uint32(msg[4:])
	packet.SequenceNumber = binary.BigEndian.Uint32(msg[8:])
	packet.ObservationDomainId = binary.BigEndian.Uint32(msg[12:])

	if packet.Version != Version {
		return packet, &DecoderError{"IPFIX header", fmt.Errorf("unknown version %d", packet.Version)}
	}
	end := int(packet.Length)
	if end > len(msg) {
		return packet, &DecoderError{"IPFIX header", fmt.Errorf("%w: declared %d bytes, got %d", ErrTruncated, end, len(msg))}
	}

	offset := MessageHeaderLength
	for offset+SetHeaderLength <= end {
		header := SetHeader{
			Id:     binary.BigEndian.Uint16(msg[offset:]),
			Length: binary.BigEndian.Uint16(msg[offset+2:]),
		}
		if int(header.Length) < SetHeaderLength || offset+int(header.Length) > end {
			return packet, &SetError{header.Id, fmt.Errorf("%w: set length %d", ErrTruncated, header.Length)}
		}

		set := Set{
			SetHeader: header,
			Start:     offset + SetHeaderLength,
			End:       offset + int(header.Length),
		}
		if set.IsTemplateSet() {
			records, err := decodeTemplateRecords(msg, set.Start, set.End, header.Id == SetIdOptionsTemplate)
			set.Records = records
			packet.Sets = append(packet.Sets, set)
			if err != nil {
				return packet, &SetError{header.Id, err}
			}
		} else {
			packet.Sets = append(packet.Sets, set)
		}

		offset += int(header.Length)
	}

	return packet, nil
}

// decodeTemplateRecords parses template records between start and end.
// Trailing bytes shorter than a record header, and zero-filled padding,
// terminate the set without error.
func decodeTemplateRecords(msg []byte, start, end int, options bool) ([]TemplateRecord, error) {
	var records []TemplateRecord
	offset := start
	for end-offset >= 4 {
		record := TemplateRecord{
			TemplateId: binary.BigEndian.Uint16(msg[offset:]),
			FieldCount: binary.BigEndian.Uint16(msg[offset+2:]),
		}
		if record.TemplateId == 0 {
			// padding
			break
		}
		offset += 4

		if record.FieldCount == 0 {
			// template withdrawal
			records = append(records, record)
			continue
		}

		if options {
			if end-offset < 2 {
				return records, fmt.Errorf("record %d: scope count [%w]", record.TemplateId, ErrTruncated)
			}
			record.ScopeFieldCount = binary.BigEndian.Uint16(msg[offset:])
			offset += 2
			if record.ScopeFieldCount > record.FieldCount {
				return records, fmt.Errorf("record %d: scope count %d exceeds field count %d", record.TemplateId, record.ScopeFieldCount, record.FieldCount)
			}
		}

		fields := make([]FieldSpecifier, 0, record.FieldCount)
		for i := 0; i < int(record.FieldCount); i++ {
			if end-offset < 4 {
				return records, fmt.Errorf("record %d: field %d [%w]", record.TemplateId, i, ErrTruncated)
			}
			field := FieldSpecifier{Offset: offset}
			rawType := binary.BigEndian.Uint16(msg[offset:])
			field.Length = binary.BigEndian.Uint16(msg[offset+2:])
			offset += 4
			if rawType&enterpriseBit != 0 {
				if end-offset < 4 {
					return records, fmt.Errorf("record %d: field %d enterprise number [%w]", record.TemplateId, i, ErrTruncated)
				}
				field.PenProvided = true
				field.Pen = binary.BigEndian.Uint32(msg[offset:])
				offset += 4
			}
			field.Type = rawType &^ enterpriseBit
			fields = append(fields, field)
		}
		record.Fields = fields
		records = append(records, record)
	}
	return records, nil
}
