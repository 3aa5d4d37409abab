package keys

import (
	"os"
	"path"
	"testing"

	"github.com/mosaicnetworks/mempool/src/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	require.Error(t, err, "ReadKey should generate an error")
	require.Nil(t, key)

	// Initialize a key and try a write
	key, err = GenerateKey()
	require.NoError(t, err)
	require.NoError(t, simpleKeyfile.WriteKey(key))

	// Try a read, should get key
	nKey, err := simpleKeyfile.ReadKey()
	require.NoError(t, err)

	assert.Equal(t, DumpPrivateKey(key), DumpPrivateKey(nKey))
	assert.Equal(t, PublicKeyBytes(key), PublicKeyBytes(nKey))
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, err := GenerateKey()
	require.NoError(t, err)
	rawKey := PrivateKeyHex(key)

	badKeyPath := path.Join(dir, "priv_key_bad")

	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		require.NoError(t, os.WriteFile(badKeyPath, []byte(rawKey), fm))
		require.NoError(t, os.Chmod(badKeyPath, fm))

		badKeyFile := NewSimpleKeyfile(badKeyPath)

		_, err := badKeyFile.ReadKey()
		assert.Error(t, err, "%o should return permissions error", fm)
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		require.NoError(t, os.WriteFile(goodKeyPath, []byte(rawKey), 0600))
		require.NoError(t, os.Chmod(goodKeyPath, fm))

		goodKeyFile := NewSimpleKeyfile(goodKeyPath)

		_, err := goodKeyFile.ReadKey()
		assert.NoError(t, err, "%o should not return error", fm)
	}
}

func TestSignVerify(t *testing.T) {
	privKey, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	hash := crypto.SHA256([]byte("J'aime mieux forger mon ame que la meubler"))

	sig := Sign(privKey, hash)

	assert.True(t, Verify(PublicKeyBytes(privKey), hash, sig))
	assert.False(t, Verify(PublicKeyBytes(other), hash, sig), "wrong key")
	assert.False(t, Verify(PublicKeyBytes(privKey), crypto.SHA256([]byte("x")), sig), "wrong hash")
	assert.False(t, Verify(PublicKeyBytes(privKey), hash, []byte{1, 2, 3}), "garbage signature")
	assert.False(t, Verify([]byte{2, 0}, hash, sig), "garbage key")
}

func TestParsePrivateKey(t *testing.T) {
	_, err := ParsePrivateKey(make([]byte, 31))
	assert.Error(t, err)

	_, err = ParsePrivateKey(make([]byte, PrivateKeyLen))
	assert.Error(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(DumpPrivateKey(key))
	require.NoError(t, err)
	assert.Equal(t, PublicKeyHex(key), PublicKeyHex(parsed))

	pub, err := ParsePublicKey(PublicKeyBytes(key))
	require.NoError(t, err)
	assert.True(t, pub.IsEqual(key.PubKey()))
}
