package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictSystemRoundTrip(t *testing.T) {
	require.NoError(t, InitVerdicts())
	defer CloseVerdicts()

	sys := CreateVerdictSystem("exporter-a")

	_, err := sys.Get(1, 256)
	assert.ErrorIs(t, err, ErrVerdictNotFound)

	verdict := Verdict{Vendor: "invea-tech", FieldsDigest: 0xdeadbeef}
	require.NoError(t, sys.Add(1, 256, verdict))

	got, err := sys.Get(1, 256)
	require.NoError(t, err)
	assert.Equal(t, verdict, got)

	// overwrite on redefinition
	redefined := Verdict{FieldsDigest: 0xfeedface}
	require.NoError(t, sys.Add(1, 256, redefined))
	got, err = sys.Get(1, 256)
	require.NoError(t, err)
	assert.Equal(t, redefined, got)

	require.NoError(t, sys.Remove(1, 256))
	_, err = sys.Get(1, 256)
	assert.ErrorIs(t, err, ErrVerdictNotFound)

	// removing an absent entry is not an error
	assert.NoError(t, sys.Remove(1, 256))
}

func TestVerdictSystemScopedByKeyAndDomain(t *testing.T) {
	require.NoError(t, InitVerdicts())
	defer CloseVerdicts()

	a := CreateVerdictSystem("exporter-a")
	b := CreateVerdictSystem("exporter-b")

	require.NoError(t, a.Add(1, 300, Verdict{Vendor: "ntop"}))

	_, err := b.Get(1, 300)
	assert.ErrorIs(t, err, ErrVerdictNotFound)

	_, err = a.Get(2, 300)
	assert.ErrorIs(t, err, ErrVerdictNotFound)

	got, err := a.Get(1, 300)
	require.NoError(t, err)
	assert.Equal(t, "ntop", got.Vendor)
}

func TestMemoryStateOps(t *testing.T) {
	db, err := NewState[string, int]("memory://")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get("a")
	assert.ErrorIs(t, err, ErrorKeyNotFound)

	require.NoError(t, db.Add("a", 1))
	v, err := db.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = db.Pop("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	_, err = db.Get("a")
	assert.ErrorIs(t, err, ErrorKeyNotFound)
}

func TestNewStateUnknownScheme(t *testing.T) {
	_, err := NewState[string, int]("zookeeper://localhost")
	require.Error(t, err)
}
