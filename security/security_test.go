package security

import (
	"bytes"
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflib/ir/raw"
)

func TestPadPassword(t *testing.T) {
	p := padPassword([]byte("ab"))
	require.Len(t, p, 32)
	assert.Equal(t, []byte("ab"), p[:2])
	assert.Equal(t, passwordPadding[:30], p[2:])

	full := padPassword(bytes.Repeat([]byte{'x'}, 40))
	require.Len(t, full, 32)
	assert.Equal(t, byte('x'), full[31])
}

func TestObjectKey(t *testing.T) {
	fileKey := bytes.Repeat([]byte{0xAA}, 16)

	k1 := objectKey(fileKey, 1, 0, 4, false)
	k2 := objectKey(fileKey, 2, 0, 4, false)
	assert.Len(t, k1, 16)
	assert.NotEqual(t, k1, k2)

	// the AES salt changes the derivation
	assert.NotEqual(t, k1, objectKey(fileKey, 1, 0, 4, true))

	// R5+ uses the file key untouched
	assert.Equal(t, fileKey, objectKey(fileKey, 9, 2, 6, true))
}

func TestRC4Symmetric(t *testing.T) {
	key := []byte("0123456789")
	plain := []byte("round trip payload")
	assert.Equal(t, plain, rc4Simple(key, rc4Simple(key, plain)))
}

func TestAESDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	iv := bytes.Repeat([]byte{0x22}, aes.BlockSize)
	plain := []byte("exactly sixteen!") // one block, padded with a full block

	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{16}, 16)...)
	ct, err := aesCBCWithIV(key, iv, padded, true)
	require.NoError(t, err)

	out, err := aesDecrypt(key, append(append([]byte(nil), iv...), ct...))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

// buildRC4Encrypt computes the O and U entries of an R3 standard security
// handler the way a writer would, so authentication runs against real
// values.
func buildRC4Encrypt(t *testing.T, userPwd, ownerPwd string, p int32, fileID []byte) (*raw.DictObj, *raw.DictObj) {
	t.Helper()
	const keyLen = 16

	// algorithm 3: O entry
	digest := md5Sum(padPassword([]byte(ownerPwd)))
	for i := 0; i < 50; i++ {
		digest = md5Sum(digest)
	}
	rc4Key := digest[:keyLen]
	o := padPassword([]byte(userPwd))
	for i := 0; i < 20; i++ {
		k := make([]byte, keyLen)
		for j := range k {
			k[j] = rc4Key[j] ^ byte(i)
		}
		o = rc4Simple(k, o)
	}

	// algorithm 5: U entry
	fileKey := deriveRC4KeyPadded(padPassword([]byte(userPwd)), o, p, fileID, keyLen, 3, true)
	u := md5Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	u = rc4Simple(fileKey, u)
	for i := 1; i < 20; i++ {
		k := make([]byte, keyLen)
		for j := range k {
			k[j] = fileKey[j] ^ byte(i)
		}
		u = rc4Simple(k, u)
	}
	u = append(u, bytes.Repeat([]byte{0}, 16)...)

	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(2))
	enc.Set(raw.NameLiteral("R"), raw.NumberInt(3))
	enc.Set(raw.NameLiteral("Length"), raw.NumberInt(128))
	enc.Set(raw.NameLiteral("P"), raw.NumberInt(int64(p)))
	enc.Set(raw.NameLiteral("O"), raw.Str(o))
	enc.Set(raw.NameLiteral("U"), raw.Str(u))

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.Str(fileID), raw.Str(fileID)))
	return enc, trailer
}

func TestStandardHandlerRC4Authentication(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, trailer := buildRC4Encrypt(t, "", "hunter2", -4, fileID)

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	require.NoError(t, err)
	assert.True(t, h.IsEncrypted())

	// empty user password
	require.NoError(t, h.Authenticate(""))

	// owner password recovers the same file key
	h2, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	require.NoError(t, err)
	require.NoError(t, h2.Authenticate("hunter2"))

	h3, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, h3.Authenticate("not the password"), ErrWrongPassword)
}

func TestStandardHandlerRC4DecryptRoundTrip(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, trailer := buildRC4Encrypt(t, "", "hunter2", -4, fileID)

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	require.NoError(t, err)
	require.NoError(t, h.Authenticate(""))

	sh := h.(*standardHandler)
	plain := []byte("an encrypted string value")
	cipher := rc4Simple(objectKey(sh.key, 12, 0, 3, false), plain)

	out, err := h.Decrypt(12, 0, cipher, DataClassString)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestStandardHandlerPermissions(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	// print and copy only
	enc, trailer := buildRC4Encrypt(t, "", "pw", int32(-1)&^0x8&^0x20&^0x100&^0x200&^0x400&^0x800, fileID)

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	require.NoError(t, err)
	perms := h.Permissions()
	assert.True(t, perms.Print)
	assert.True(t, perms.Copy)
	assert.False(t, perms.Modify)
	assert.False(t, perms.Assemble)
}

func buildAES256Encrypt(t *testing.T, pwd string, fileKey []byte) *raw.DictObj {
	t.Helper()
	vSalt := []byte("valsalt!")
	kSalt := []byte("keysalt!")

	u := append([]byte(nil), rev6Hash([]byte(pwd), vSalt, nil)[:32]...)
	u = append(u, vSalt...)
	u = append(u, kSalt...)

	inter := rev6Hash([]byte(pwd), kSalt, nil)
	iv := make([]byte, aes.BlockSize)
	ue, err := aesCBCWithIV(inter[:32], iv, fileKey, true)
	require.NoError(t, err)

	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(5))
	enc.Set(raw.NameLiteral("R"), raw.NumberInt(6))
	enc.Set(raw.NameLiteral("Length"), raw.NumberInt(256))
	enc.Set(raw.NameLiteral("U"), raw.Str(u))
	enc.Set(raw.NameLiteral("UE"), raw.Str(ue))
	return enc
}

func TestStandardHandlerAES256(t *testing.T) {
	fileKey := bytes.Repeat([]byte{0x5A}, 32)
	enc := buildAES256Encrypt(t, "secret", fileKey)

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).Build()
	require.NoError(t, err)

	require.NoError(t, h.Authenticate("secret"))
	sh := h.(*standardHandler)
	assert.Equal(t, fileKey, sh.key)

	assert.ErrorIs(t, func() error {
		h2, err := (&HandlerBuilder{}).WithEncryptDict(buildAES256Encrypt(t, "secret", fileKey)).Build()
		require.NoError(t, err)
		return h2.Authenticate("wrong")
	}(), ErrWrongPassword)

	// stream decryption uses the file key with an IV-prefixed payload
	plain := []byte("aes two fifty six block data....") // 32 bytes
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{16}, 16)...)
	iv := bytes.Repeat([]byte{7}, aes.BlockSize)
	ct, err := aesCBCWithIV(fileKey, iv, padded, true)
	require.NoError(t, err)

	out, err := h.Decrypt(4, 0, append(append([]byte(nil), iv...), ct...), DataClassStream)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestCryptFilterSelection(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	enc, trailer := buildRC4Encrypt(t, "", "pw", -4, fileID)

	// V4 with a V2 StdCF for streams and Identity for strings
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(4))
	enc.Set(raw.NameLiteral("R"), raw.NumberInt(4))
	cf := raw.Dict()
	std := raw.Dict()
	std.Set(raw.NameLiteral("CFM"), raw.NameLiteral("V2"))
	cf.Set(raw.NameLiteral("StdCF"), std)
	enc.Set(raw.NameLiteral("CF"), cf)
	enc.Set(raw.NameLiteral("StmF"), raw.NameLiteral("StdCF"))
	enc.Set(raw.NameLiteral("StrF"), raw.NameLiteral("Identity"))

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	require.NoError(t, err)
	sh := h.(*standardHandler)
	assert.Equal(t, algoRC4, sh.streamAlgo)
	assert.Equal(t, algoNone, sh.stringAlgo)

	// Identity data passes through untouched
	data := []byte("untouched")
	out, err := h.DecryptWithFilter(1, 0, data, DataClassString, "Identity")
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestHandlerBuilderRejectsUnknownFilter(t *testing.T) {
	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("PubSec"))
	_, err := (&HandlerBuilder{}).WithEncryptDict(enc).Build()
	assert.Error(t, err)
}

func TestHandlerBuilderRejectsUnsupportedRevision(t *testing.T) {
	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(9))
	_, err := (&HandlerBuilder{}).WithEncryptDict(enc).Build()
	assert.Error(t, err)
}

func TestNoopHandler(t *testing.T) {
	h := NoopHandler()
	assert.False(t, h.IsEncrypted())
	require.NoError(t, h.Authenticate("anything"))
	out, err := h.Decrypt(1, 0, []byte("data"), DataClassStream)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), out)
	assert.True(t, h.Permissions().Print)
}
