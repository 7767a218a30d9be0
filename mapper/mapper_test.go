package mapper

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Secdorks/ipfixcol/decoders/ipfix"
)

type testField struct {
	pen    uint32
	id     uint16
	length uint16
}

// buildTemplateMessage builds a one-record template set message and
// returns the buffer plus the parsed record.
func buildTemplateMessage(t *testing.T, fields []testField) ([]byte, ipfix.TemplateRecord) {
	t.Helper()
	record := new(bytes.Buffer)
	require.NoError(t, ipfix.WriteU16(record, 256))
	require.NoError(t, ipfix.WriteU16(record, uint16(len(fields))))
	for _, f := range fields {
		if f.pen != 0 {
			require.NoError(t, ipfix.WriteU16(record, f.id|0x8000))
			require.NoError(t, ipfix.WriteU16(record, f.length))
			require.NoError(t, ipfix.WriteU32(record, f.pen))
		} else {
			require.NoError(t, ipfix.WriteU16(record, f.id))
			require.NoError(t, ipfix.WriteU16(record, f.length))
		}
	}

	buf := new(bytes.Buffer)
	require.NoError(t, ipfix.WriteU16(buf, ipfix.Version))
	require.NoError(t, ipfix.WriteU16(buf, uint16(ipfix.MessageHeaderLength+ipfix.SetHeaderLength+record.Len())))
	require.NoError(t, ipfix.WriteU32(buf, 1700000000))
	require.NoError(t, ipfix.WriteU32(buf, 1))
	require.NoError(t, ipfix.WriteU32(buf, 1))
	require.NoError(t, ipfix.WriteU16(buf, ipfix.SetIdTemplate))
	require.NoError(t, ipfix.WriteU16(buf, uint16(ipfix.SetHeaderLength+record.Len())))
	buf.Write(record.Bytes())

	msg := buf.Bytes()
	packet, err := ipfix.DecodeMessage(msg)
	require.NoError(t, err)
	require.Len(t, packet.Sets, 1)
	require.Len(t, packet.Sets[0].Records, 1)
	return msg, packet.Sets[0].Records[0]
}

func identities(t *testing.T, msg []byte) []Identity {
	t.Helper()
	packet, err := ipfix.DecodeMessage(msg)
	require.NoError(t, err)
	var ids []Identity
	for _, field := range packet.Sets[0].Records[0].Fields {
		ids = append(ids, IdentityOf(field))
	}
	return ids
}

func TestMatchInvea(t *testing.T) {
	_, record := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 4},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
		{pen: PenInvea, id: 20, length: ipfix.VariableLength},
	})
	vendor, ok := Match(DefaultVendors(), record.Fields)
	require.True(t, ok)
	assert.Equal(t, "invea-tech", vendor.Name)
}

func TestMatchMasaryk(t *testing.T) {
	_, record := buildTemplateMessage(t, []testField{
		{pen: 0, id: 8, length: 4},
		{pen: PenMasaryk, id: 501, length: ipfix.VariableLength},
		{pen: PenMasaryk, id: 502, length: ipfix.VariableLength},
		{pen: PenMasaryk, id: 504, length: ipfix.VariableLength},
	})
	vendor, ok := Match(DefaultVendors(), record.Fields)
	require.True(t, ok)
	assert.Equal(t, "masaryk", vendor.Name)
}

func TestMatchNtopBothEncodings(t *testing.T) {
	_, native := buildTemplateMessage(t, []testField{
		{pen: PenNtop, id: 187, length: ipfix.VariableLength},
		{pen: PenNtop, id: 180, length: ipfix.VariableLength},
		{pen: PenNtop, id: 183, length: ipfix.VariableLength},
	})
	vendor, ok := Match(DefaultVendors(), native.Fields)
	require.True(t, ok)
	assert.Equal(t, "ntop", vendor.Name)

	_, converted := buildTemplateMessage(t, []testField{
		{pen: PenNetFlowV9, id: 24891, length: ipfix.VariableLength},
		{pen: PenNetFlowV9, id: 24884, length: ipfix.VariableLength},
		{pen: PenNetFlowV9, id: 24887, length: ipfix.VariableLength},
	})
	vendor, ok = Match(DefaultVendors(), converted.Fields)
	require.True(t, ok)
	assert.Equal(t, "ntop-v9", vendor.Name)
}

func TestMatchCiscoNeedsFourInstances(t *testing.T) {
	_, three := buildTemplateMessage(t, []testField{
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
	})
	_, ok := Match(DefaultVendors(), three.Fields)
	assert.False(t, ok)

	_, four := buildTemplateMessage(t, []testField{
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
	})
	vendor, ok := Match(DefaultVendors(), four.Fields)
	require.True(t, ok)
	assert.Equal(t, "cisco", vendor.Name)
}

func TestMatchNone(t *testing.T) {
	_, record := buildTemplateMessage(t, []testField{
		{pen: 0, id: 8, length: 4},
		{pen: 12345, id: 1, length: 4},
	})
	_, ok := Match(DefaultVendors(), record.Fields)
	assert.False(t, ok)
}

func TestMatchPartialSignature(t *testing.T) {
	// hostname and URL but no user agent: not an invea template
	_, record := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 4},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
	})
	_, ok := Match(DefaultVendors(), record.Fields)
	assert.False(t, ok)
}

func findVendor(t *testing.T, name string) Vendor {
	t.Helper()
	for _, vendor := range DefaultVendors() {
		if vendor.Name == name {
			return vendor
		}
	}
	t.Fatalf("vendor %s not in default tables", name)
	return Vendor{}
}

func TestRewriteInvea(t *testing.T) {
	msg, record := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 4},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
		{pen: PenInvea, id: 20, length: ipfix.VariableLength},
	})

	rewritten, err := findVendor(t, "invea-tech").Rewrite(msg, record)
	require.NoError(t, err)
	assert.Equal(t, 3, rewritten)

	assert.Equal(t, []Identity{
		UnifiedHTTPHostname,
		UnifiedHTTPURL,
		UnifiedHTTPUserAgent,
	}, identities(t, msg))

	// field lengths unchanged per field
	packet, err := ipfix.DecodeMessage(msg)
	require.NoError(t, err)
	fields := packet.Sets[0].Records[0].Fields
	assert.Equal(t, uint16(4), fields[0].Length)
	assert.Equal(t, uint16(ipfix.VariableLength), fields[1].Length)
	assert.Equal(t, uint16(ipfix.VariableLength), fields[2].Length)
}

func TestRewriteCiscoPositional(t *testing.T) {
	msg, record := buildTemplateMessage(t, []testField{
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
	})

	rewritten, err := findVendor(t, "cisco").Rewrite(msg, record)
	require.NoError(t, err)
	assert.Equal(t, 3, rewritten)

	// documented emission order: URL, hostname, user agent, unknown;
	// the fourth instance stays untouched
	assert.Equal(t, []Identity{
		UnifiedHTTPURL,
		UnifiedHTTPHostname,
		UnifiedHTTPUserAgent,
		{PenCisco, 12235},
	}, identities(t, msg))
}

func TestRewriteCiscoInterleaved(t *testing.T) {
	// occurrences count by position among the shared identity only
	msg, record := buildTemplateMessage(t, []testField{
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: 0, id: 8, length: 4},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
		{pen: PenCisco, id: 12235, length: ipfix.VariableLength},
	})

	rewritten, err := findVendor(t, "cisco").Rewrite(msg, record)
	require.NoError(t, err)
	assert.Equal(t, 3, rewritten)

	assert.Equal(t, []Identity{
		UnifiedHTTPURL,
		{0, 8},
		UnifiedHTTPHostname,
		UnifiedHTTPUserAgent,
		{PenCisco, 12235},
	}, identities(t, msg))
}

func TestRewriteIdempotent(t *testing.T) {
	msg, record := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 4},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
		{pen: PenInvea, id: 20, length: ipfix.VariableLength},
	})

	_, err := findVendor(t, "invea-tech").Rewrite(msg, record)
	require.NoError(t, err)

	// a rewritten template matches no vendor signature anymore
	packet, err := ipfix.DecodeMessage(msg)
	require.NoError(t, err)
	_, ok := Match(DefaultVendors(), packet.Sets[0].Records[0].Fields)
	assert.False(t, ok)
}

func TestDigestDetectsLayoutChange(t *testing.T) {
	_, a := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 4},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
	})
	_, b := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 4},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
	})
	assert.Equal(t, Digest(a.Fields), Digest(b.Fields))

	_, c := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
		{pen: PenInvea, id: 1, length: 4},
	})
	assert.NotEqual(t, Digest(a.Fields), Digest(c.Fields))

	_, d := buildTemplateMessage(t, []testField{
		{pen: PenInvea, id: 1, length: 8},
		{pen: PenInvea, id: 2, length: ipfix.VariableLength},
	})
	assert.NotEqual(t, Digest(a.Fields), Digest(d.Fields))
}
