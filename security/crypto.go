package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

func md5Sum(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

// deriveRC4Key implements algorithm 2 of ISO 32000-1 for R2..R4.
func deriveRC4Key(pwd, owner []byte, p int32, fileID []byte, keyLen, r int, encryptMeta bool) []byte {
	return deriveRC4KeyPadded(padPassword(pwd), owner, p, fileID, keyLen, r, encryptMeta)
}

func deriveRC4KeyPadded(padded, owner []byte, p int32, fileID []byte, keyLen, r int, encryptMeta bool) []byte {
	if keyLen <= 0 {
		keyLen = 5
	}
	if keyLen > 16 {
		keyLen = 16
	}
	data := make([]byte, 0, 32+len(owner)+4+len(fileID)+4)
	data = append(data, padded...)
	data = append(data, owner...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	key := md5Sum(data)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			key = md5Sum(key[:keyLen])
		}
	}
	return key[:keyLen]
}

// checkUserPassword implements algorithms 4 and 5 of ISO 32000-1.
func checkUserPassword(key, userEntry, fileID []byte, r int) bool {
	if len(userEntry) < 16 {
		return false
	}
	if r == 2 {
		expect := rc4Simple(key, passwordPadding)
		return comparePrefix(expect[:16], userEntry[:16])
	}
	val := md5Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	val = rc4Simple(key, val)
	for i := 1; i < 20; i++ {
		k := make([]byte, len(key))
		for j := range key {
			k[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(k, val)
	}
	return comparePrefix(val[:16], userEntry[:16])
}

// objectKey derives the per-object key. R5/6 use the file key directly.
func objectKey(fileKey []byte, objNum, gen, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := append([]byte(nil), fileKey...)
	key = append(key,
		byte(objNum), byte(objNum>>8), byte(objNum>>16),
		byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return md5Sum(key)[:n]
}

func rc4Simple(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return data
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// aesDecrypt undoes AES-CBC with the IV carried in the first block and
// PKCS#7 padding at the end.
func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv := data[:aes.BlockSize]
	ct := data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("aes ciphertext not a multiple of the block size")
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

func aesCBCWithIV(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.New("invalid iv size")
	}
	if !encrypt {
		if len(data)%aes.BlockSize != 0 {
			return nil, errors.New("aes data not a multiple of the block size")
		}
		out := make([]byte, len(data))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
		return out, nil
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes plaintext not a multiple of the block size")
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// rev6Hash is the hardened hash of ISO 32000-2 algorithm 2.B used by R6.
func rev6Hash(pwd, salt, extra []byte) []byte {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	data := append(append(append([]byte{}, pwd...), salt...), extra...)
	sum := sha256.Sum256(data)
	h := sum[:]
	i := 0
	for {
		block := make([]byte, 0, 64*(len(pwd)+len(h)+len(extra)))
		for k := 0; k < 64; k++ {
			block = append(block, pwd...)
			block = append(block, h...)
			block = append(block, extra...)
		}
		enc, err := aesCBCWithIV(h[:16], h[16:32], block, true)
		if err != nil {
			return h
		}
		mod := 0
		for _, b := range enc[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(enc)
			h = s[:]
		case 1:
			s := sha512.Sum384(enc)
			h = s[:]
		default:
			s := sha512.Sum512(enc)
			h = s[:]
		}
		i++
		if i >= 64 && int(enc[len(enc)-1]) <= i-32 {
			break
		}
	}
	return h[:32]
}

func (h *standardHandler) authenticateAES256(pwd []byte) error {
	if len(h.uEntry) >= 48 && len(h.ue) >= 32 {
		if key, ok := deriveAES256User(pwd, h.uEntry, h.ue); ok {
			h.key = key
			h.loadPermsAES256()
			return nil
		}
	}
	if len(h.oEntry) >= 48 && len(h.oe) >= 32 && len(h.uEntry) >= 48 {
		if key, ok := deriveAES256Owner(pwd, h.oEntry, h.oe, h.uEntry); ok {
			h.key = key
			h.loadPermsAES256()
			return nil
		}
	}
	return ErrWrongPassword
}

func deriveAES256User(pwd, uEntry, ue []byte) ([]byte, bool) {
	validationSalt := uEntry[32:40]
	keySalt := uEntry[40:48]
	if !comparePrefix(rev6Hash(pwd, validationSalt, nil)[:32], uEntry[:32]) {
		return nil, false
	}
	keyHash := rev6Hash(pwd, keySalt, nil)
	iv := make([]byte, aes.BlockSize)
	fileKey, err := aesCBCWithIV(keyHash[:32], iv, ue[:32], false)
	if err != nil {
		return nil, false
	}
	return fileKey, true
}

func deriveAES256Owner(pwd, oEntry, oe, uEntry []byte) ([]byte, bool) {
	validationSalt := oEntry[32:40]
	keySalt := oEntry[40:48]
	if !comparePrefix(rev6Hash(pwd, validationSalt, uEntry[:48])[:32], oEntry[:32]) {
		return nil, false
	}
	keyHash := rev6Hash(pwd, keySalt, uEntry[:48])
	iv := make([]byte, aes.BlockSize)
	fileKey, err := aesCBCWithIV(keyHash[:32], iv, oe[:32], false)
	if err != nil {
		return nil, false
	}
	return fileKey, true
}

func (h *standardHandler) loadPermsAES256() {
	if h.p != 0 || h.trailer == nil {
		return
	}
	// encrypted /Perms value lives in the Encrypt dict in real files; the
	// builder stores the whole trailer so look in both
	perms, ok := stringBytes(h.trailer, "Perms")
	if !ok || len(perms) != 16 || len(h.key) == 0 {
		return
	}
	block, err := aes.NewCipher(h.key)
	if err != nil {
		return
	}
	out := make([]byte, 16)
	block.Decrypt(out, perms)
	if comparePrefix([]byte("perm"), out[9:13]) || comparePrefix([]byte("adb"), out[9:12]) {
		h.p = int32(binary.LittleEndian.Uint32(out[0:4]))
	}
}

func comparePrefix(a, b []byte) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
