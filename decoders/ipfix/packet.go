package ipfix

import (
	"fmt"
)

const (
	// Version is the version field value of every IPFIX message header.
	// NetFlow v9 traffic is expected to have been converted upstream.
	Version = 10

	// MessageHeaderLength is the fixed size of the IPFIX message header.
	MessageHeaderLength = 16

	// SetHeaderLength is the fixed size of a set header.
	SetHeaderLength = 4

	// SetIdTemplate and SetIdOptionsTemplate tag the two template set kinds.
	// Ids 0, 1, 4-255 are reserved; ids >= 256 address data sets.
	SetIdTemplate        = 2
	SetIdOptionsTemplate = 3

	// MinDataSetId is the lowest set id bound to a template.
	MinDataSetId = 256

	// VariableLength marks a variable-length field in a specifier.
	VariableLength = 0xffff

	enterpriseBit = 0x8000
)

// MessageHeader is the IPFIX message header (RFC 7011 section 3.1).
type MessageHeader struct {
	Version             uint16 `json:"version"`
	Length              uint16 `json:"length"`
	ExportTime          uint32 `json:"export-time"`
	SequenceNumber      uint32 `json:"sequence-number"`
	ObservationDomainId uint32 `json:"observation-domain-id"`
}

// SetHeader precedes every set within a message.
type SetHeader struct {
	// Set ID:
	//    2 for a Template Set
	//    3 for an Options Template Set
	//    256-65535 for a Data Set (used as template id)
	Id uint16 `json:"id"`

	// The total length of the set in bytes (including padding).
	Length uint16 `json:"length"`
}

// FieldSpecifier describes one field of a template record. The specifier
// occupies 4 bytes in the message, plus 4 more for the enterprise number
// when the enterprise bit of the type field is set.
type FieldSpecifier struct {
	// Element id with the enterprise bit cleared.
	Type uint16 `json:"type"`

	// Encoded field length in bytes, VariableLength for variable.
	Length uint16 `json:"length"`

	// Private enterprise number, valid when PenProvided.
	Pen         uint32 `json:"pen"`
	PenProvided bool   `json:"pen-provided"`

	// Offset is the absolute byte position of this specifier within the
	// message buffer it was parsed from. It allows patching the specifier
	// in place without reserializing the record.
	Offset int `json:"-"`
}

// TemplateRecord is a single template definition inside a template or
// options template set. A record with FieldCount zero is a withdrawal.
type TemplateRecord struct {
	// Template ids of data sets are numbered from 256 to 65535, unique
	// per observation domain.
	TemplateId uint16 `json:"template-id"`

	// Number of field specifiers, scope fields included.
	FieldCount uint16 `json:"field-count"`

	// Number of leading scope fields; non-zero only in options templates.
	ScopeFieldCount uint16 `json:"scope-field-count"`

	// Ordered field specifiers. Order is semantically significant: some
	// vendors reuse one element id with meaning given by position.
	Fields []FieldSpecifier `json:"fields"`
}

// IsWithdrawal reports whether the record withdraws a previous definition
// rather than defining a template.
func (tr TemplateRecord) IsWithdrawal() bool {
	return tr.FieldCount == 0
}

// WithdrawsAll reports whether the record is an all-templates withdrawal,
// signalled by the template id field carrying the enclosing set id.
func (tr TemplateRecord) WithdrawsAll() bool {
	return tr.FieldCount == 0 && (tr.TemplateId == SetIdTemplate || tr.TemplateId == SetIdOptionsTemplate)
}

// Set is one set of a parsed message. Start and End delimit the set
// contents (header excluded) within the message buffer. Records is
// populated for template and options template sets only; data sets are
// carried as an opaque byte range.
type Set struct {
	SetHeader

	Start int `json:"-"`
	End   int `json:"-"`

	Records []TemplateRecord `json:"records,omitempty"`
}

// IsTemplateSet reports whether the set carries template records.
func (s Set) IsTemplateSet() bool {
	return s.Id == SetIdTemplate || s.Id == SetIdOptionsTemplate
}

// Message is a structurally parsed IPFIX message backed by the original
// buffer. Parsing never copies or alters the buffer.
type Message struct {
	MessageHeader

	Sets []Set `json:"sets"`
}

func (f FieldSpecifier) String() string {
	if f.PenProvided {
		return fmt.Sprintf("e%did%d/%d", f.Pen, f.Type, f.Length)
	}
	return fmt.Sprintf("id%d/%d", f.Type, f.Length)
}

func (tr TemplateRecord) String() string {
	str := fmt.Sprintf("TemplateId: %v FieldCount: %v\n", tr.TemplateId, tr.FieldCount)
	for i, field := range tr.Fields {
		str += fmt.Sprintf("  - %v. %v\n", i, field.String())
	}
	return str
}
