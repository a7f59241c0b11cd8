package keycodec

import (
	"strings"
	"testing"

	"github.com/agrofresa/fresachain/fault"
	"github.com/stretchr/testify/assert"
)

func TestBuildTerminatesEveryAttribute(t *testing.T) {
	key, err := Build("usuario", "agricultor", "0xABC")
	assert.NoError(t, err)
	assert.Equal(t, "usuario/agricultor/0xABC/", key)
}

func TestBuildRejectsEmptyComponents(t *testing.T) {
	_, err := Build("", "a")
	assert.True(t, fault.IsCode(err, fault.InvalidKeyAttribute))

	_, err = Build("usuario", "")
	assert.True(t, fault.IsCode(err, fault.InvalidKeyAttribute))

	_, err = Build("usu/ario", "a")
	assert.True(t, fault.IsCode(err, fault.InvalidKeyAttribute))
}

func TestParseRoundTrip(t *testing.T) {
	attrs := []string{"0xOwner", "albión", "L-2024/07", "50%"}
	key, err := Build("loteSemillas", attrs...)
	assert.NoError(t, err)

	got, err := Parse("loteSemillas", key)
	assert.NoError(t, err)
	assert.Equal(t, attrs, got)
}

func TestParseWrongNamespace(t *testing.T) {
	key, err := Build("loteSemillas", "a", "b")
	assert.NoError(t, err)

	_, err = Parse("cosechaFresas", key)
	assert.True(t, fault.IsCode(err, fault.WrongAssetType))
}

func TestParseMalformedKey(t *testing.T) {
	_, err := Parse("usuario", "usuario/no-trailing-separator")
	assert.True(t, fault.IsCode(err, fault.InvalidKeyAttribute))

	_, err = Parse("usuario", "usuario")
	assert.True(t, fault.IsCode(err, fault.InvalidKeyAttribute))
}

// A prefix of K attributes must match exactly the keys whose first K
// attributes equal the prefix values. "al" must not match "albión" and an
// attribute containing the separator must not fake a deeper path.
func TestPrefixPropertyIsAttributeWise(t *testing.T) {
	full, err := Build("loteSemillas", "owner1", "albión", "L1")
	assert.NoError(t, err)

	match, err := Prefix("loteSemillas", "owner1", "albión")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, match))

	partial, err := Prefix("loteSemillas", "owner1", "al")
	assert.NoError(t, err)
	assert.False(t, strings.HasPrefix(full, partial))

	tricky, err := Build("loteSemillas", "owner1/albión")
	assert.NoError(t, err)
	assert.False(t, strings.HasPrefix(tricky, match))
}

// Harvest keys embed a full seed lot key as a single attribute. The embedded
// separators must survive a round trip without splitting the attribute.
func TestEmbeddedCompositeKeyAttribute(t *testing.T) {
	lotKey, err := Build("loteSemillas", "owner1", "albión", "L1")
	assert.NoError(t, err)

	harvestKey, err := Build("cosechaFresas", "owner1", "albión", "C1", lotKey)
	assert.NoError(t, err)

	attrs, err := Parse("cosechaFresas", harvestKey)
	assert.NoError(t, err)
	assert.Len(t, attrs, 4)
	assert.Equal(t, lotKey, attrs[3])
}

func TestNamespace(t *testing.T) {
	key, err := Build("paqueteFresas", "h", "p")
	assert.NoError(t, err)
	assert.Equal(t, "paqueteFresas", Namespace(key))
	assert.Equal(t, "bare", Namespace("bare"))
}
