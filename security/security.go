package security

import (
	"errors"
	"fmt"

	"pdflib/ir/raw"
)

// ErrWrongPassword reports that neither the user nor the owner password
// matched the encryption dictionary.
var ErrWrongPassword = errors.New("wrong password")

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations bool
	FillForms, ExtractAccessible           bool
	Assemble, PrintHighQuality             bool
}

// Handler decrypts strings and stream payloads as objects are loaded.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
}

type HandlerBuilder struct {
	encryptDict raw.Dictionary
	trailer     raw.Dictionary
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d raw.Dictionary) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithTrailer(d raw.Dictionary) *HandlerBuilder { b.trailer = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder         { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return NoopHandler(), nil
	}
	if name := nameVal(b.encryptDict, "Filter"); name != "" && name != "Standard" {
		return nil, fmt.Errorf("unsupported security handler %s", name)
	}
	v, _ := numberVal(b.encryptDict, "V")
	if v == 0 {
		v = 1
	}
	r, _ := numberVal(b.encryptDict, "R")
	if r == 0 {
		r = 2
	}
	if v > 5 || r > 6 {
		return nil, fmt.Errorf("encryption V=%d R=%d not supported", v, r)
	}
	keyLen := 40
	if v >= 5 {
		keyLen = 256
	}
	if n, ok := numberVal(b.encryptDict, "Length"); ok && n > 0 {
		keyLen = int(n)
	}
	if v >= 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 {
		return nil, errors.New("encryption key length must be a multiple of 8")
	}
	owner, _ := stringBytes(b.encryptDict, "O")
	user, _ := stringBytes(b.encryptDict, "U")
	oe, _ := stringBytes(b.encryptDict, "OE")
	ue, _ := stringBytes(b.encryptDict, "UE")
	pVal, _ := numberVal(b.encryptDict, "P")

	id := b.fileID
	if len(id) == 0 && b.trailer != nil {
		if arrObj, ok := b.trailer.Get(raw.NameLiteral("ID")); ok {
			if arr, ok := arrObj.(*raw.ArrayObj); ok && arr.Len() > 0 {
				if s, ok := arr.Items[0].(raw.StringObj); ok {
					id = s.Value()
				}
			}
		}
	}
	encryptMeta := true
	if bv, ok := boolVal(b.encryptDict, "EncryptMetadata"); ok {
		encryptMeta = bv
	}

	baseAlgo := algoRC4
	if int(v) >= 4 {
		baseAlgo = algoAES
	}
	cryptFilters, err := parseCryptFilters(b.encryptDict, baseAlgo)
	if err != nil {
		return nil, err
	}
	streamAlgo, err := resolveCryptFilter(b.encryptDict, "StmF", baseAlgo, cryptFilters)
	if err != nil {
		return nil, err
	}
	stringAlgo, err := resolveCryptFilter(b.encryptDict, "StrF", baseAlgo, cryptFilters)
	if err != nil {
		return nil, err
	}

	return &standardHandler{
		v:            int(v),
		r:            int(r),
		lengthBits:   keyLen,
		oEntry:       owner,
		uEntry:       user,
		oe:           oe,
		ue:           ue,
		p:            int32(pVal),
		fileID:       id,
		encryptMeta:  encryptMeta,
		streamAlgo:   streamAlgo,
		stringAlgo:   stringAlgo,
		baseAlgo:     baseAlgo,
		cryptFilters: cryptFilters,
		trailer:      b.trailer,
	}, nil
}

type cryptAlgo int

const (
	algoUnset cryptAlgo = iota
	algoNone
	algoRC4
	algoAES
)

type standardHandler struct {
	key          []byte
	v            int
	r            int
	lengthBits   int
	oEntry       []byte
	uEntry       []byte
	oe           []byte
	ue           []byte
	p            int32
	fileID       []byte
	encryptMeta  bool
	authed       bool
	baseAlgo     cryptAlgo
	streamAlgo   cryptAlgo
	stringAlgo   cryptAlgo
	cryptFilters map[string]cryptAlgo
	trailer      raw.Dictionary
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

func (h *standardHandler) Authenticate(password string) error {
	if h.r >= 5 {
		if err := h.authenticateAES256([]byte(password)); err != nil {
			return err
		}
		h.authed = true
		return nil
	}
	key := deriveRC4Key([]byte(password), h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r, h.encryptMeta)
	if !checkUserPassword(key, h.uEntry, h.fileID, h.r) {
		// the password may be the owner password: recover the user
		// password key through the O entry
		ukey, ok := h.tryOwnerPassword([]byte(password))
		if !ok {
			return ErrWrongPassword
		}
		key = ukey
	}
	h.key = key
	h.authed = true
	return nil
}

func (h *standardHandler) tryOwnerPassword(pwd []byte) ([]byte, bool) {
	if len(h.oEntry) < 32 {
		return nil, false
	}
	digest := md5Sum(padPassword(pwd))
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			digest = md5Sum(digest)
		}
	}
	n := h.lengthBits / 8
	if h.r == 2 {
		n = 5
	}
	rc4Key := digest[:n]
	userPad := append([]byte(nil), h.oEntry[:32]...)
	if h.r == 2 {
		userPad = rc4Simple(rc4Key, userPad)
	} else {
		for i := 19; i >= 0; i-- {
			k := make([]byte, len(rc4Key))
			for j := range rc4Key {
				k[j] = rc4Key[j] ^ byte(i)
			}
			userPad = rc4Simple(k, userPad)
		}
	}
	// userPad is now the padded user password
	key := deriveRC4KeyPadded(userPad, h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r, h.encryptMeta)
	if checkUserPassword(key, h.uEntry, h.fileID, h.r) {
		return key, true
	}
	return nil, false
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return h.DecryptWithFilter(objNum, gen, data, class, "")
}

func (h *standardHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo, err := h.algoFor(class, cryptFilter)
	if err != nil {
		return nil, err
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Simple(key, data), nil
}

func (h *standardHandler) pickAlgo(class DataClass) cryptAlgo {
	switch class {
	case DataClassString:
		if h.stringAlgo != algoUnset {
			return h.stringAlgo
		}
	case DataClassStream, DataClassMetadataStream:
		if h.streamAlgo != algoUnset {
			return h.streamAlgo
		}
	}
	return h.baseAlgo
}

func (h *standardHandler) algoFor(class DataClass, filter string) (cryptAlgo, error) {
	switch filter {
	case "Identity":
		return algoNone, nil
	case "", "Standard":
		return h.pickAlgo(class), nil
	}
	if algo, ok := h.cryptFilters[filter]; ok {
		return algo, nil
	}
	return algoUnset, fmt.Errorf("crypt filter %s not defined", filter)
}

func (h *standardHandler) Permissions() Permissions {
	return Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() Permissions {
	return Permissions{Print: true, Modify: true, Copy: true, ModifyAnnotations: true,
		FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true}
}
func (noEncryptionHandler) EncryptMetadata() bool { return false }

// NoopHandler is the pass-through handler used for unencrypted files.
func NoopHandler() Handler { return noEncryptionHandler{} }

func parseCryptFilters(dict raw.Dictionary, base cryptAlgo) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfObj, ok := dict.Get(raw.NameLiteral("CF"))
	if !ok {
		return out, nil
	}
	cfDict, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("CF must be a dictionary")
	}
	for name, obj := range cfDict.KV {
		entry, ok := obj.(*raw.DictObj)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		algo := base
		if cfm := nameVal(entry, "CFM"); cfm != "" {
			switch cfm {
			case "V2":
				algo = algoRC4
			case "AESV2", "AESV3":
				algo = algoAES
			case "None":
				algo = algoNone
			default:
				return nil, fmt.Errorf("unsupported crypt filter method %s", cfm)
			}
		}
		out[name] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict raw.Dictionary, key string, base cryptAlgo, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name := nameVal(dict, key)
	switch name {
	case "", "Standard":
		if algo, ok := filters["Standard"]; ok {
			return algo, nil
		}
		if algo, ok := filters["StdCF"]; ok {
			return algo, nil
		}
		return base, nil
	case "Identity":
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoUnset, fmt.Errorf("crypt filter %s not defined", name)
}

// dict helpers

func numberVal(dict raw.Dictionary, key string) (int64, bool) {
	if dict == nil {
		return 0, false
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int(), true
		}
	}
	return 0, false
}

func stringBytes(dict raw.Dictionary, key string) ([]byte, bool) {
	if dict == nil {
		return nil, false
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if s, ok := v.(raw.StringObj); ok {
			return s.Value(), true
		}
	}
	return nil, false
}

func boolVal(dict raw.Dictionary, key string) (bool, bool) {
	if dict == nil {
		return false, false
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if b, ok := v.(raw.BoolObj); ok {
			return b.V, true
		}
	}
	return false, false
}

func nameVal(dict raw.Dictionary, key string) string {
	if dict == nil {
		return ""
	}
	if v, ok := dict.Get(raw.NameLiteral(key)); ok {
		if n, ok := v.(raw.NameObj); ok {
			return n.Val
		}
	}
	return ""
}
