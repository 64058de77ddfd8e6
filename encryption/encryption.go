package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/tsawler/qdocgraph/object"
)

// padBytes is the 32-byte password padding string from ISO 32000-2
// Algorithm 2, step (a).
var padBytes = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Cipher names the stream/string cipher a file key is used with.
type Cipher int

const (
	CipherRC4 Cipher = iota
	CipherAESV2
	CipherAESV3
)

// Params is the subset of the /Encrypt dictionary the standard security
// handler needs to derive a file key and decrypt data.
type Params struct {
	V                int    // /V: algorithm version
	R                int    // /R: standard security handler revision
	Length            int   // /Length in bits (default 40)
	O, U             []byte // /O, /U password hashes
	OE, UE           []byte // /OE, /UE (R6 only)
	P                int32  // /P permission bits
	EncryptMetadata  bool   // /EncryptMetadata, default true
	ID0              []byte // first element of trailer /ID
	Cipher           Cipher
}

// Handler derives a file key from Params plus a password and decrypts
// per-object string/stream data (ISO 32000-2 Algorithm 1).
type Handler struct {
	params  Params
	fileKey []byte
}

// New derives the file key from encryptDict (the resolved /Encrypt
// dictionary) and id0 (the trailer's /ID first element, or nil), using
// password as the user password ("" for an empty one). The password is not
// tried as an owner password and is not checked against /U: a wrong
// password still yields a key, one that does not decrypt the data.
func New(encryptDict object.Dict, id0 []byte, password string, passwordIsHexKey bool) (*Handler, error) {
	params, err := parseParams(encryptDict, id0)
	if err != nil {
		return nil, err
	}

	var key []byte
	if passwordIsHexKey {
		key, err = hexDecode(password)
		if err != nil {
			return nil, fmt.Errorf("encryption: password-is-hex-key but %w", err)
		}
	} else if params.R >= 5 {
		key, err = deriveKeyR6(params, password)
		if err != nil {
			return nil, err
		}
	} else {
		key = deriveKeyR2to4(params, password)
	}

	return &Handler{params: params, fileKey: key}, nil
}

func parseParams(d object.Dict, id0 []byte) (Params, error) {
	v, _ := d.GetInt("V")
	r, _ := d.GetInt("R")
	length, ok := d.GetInt("Length")
	if !ok {
		length = 40
	}
	o, ok := d.GetString("O")
	if !ok {
		return Params{}, fmt.Errorf("encryption: /Encrypt missing /O")
	}
	u, ok := d.GetString("U")
	if !ok {
		return Params{}, fmt.Errorf("encryption: /Encrypt missing /U")
	}
	p, _ := d.GetInt("P")
	encryptMetadata := true
	if b, ok := d.GetBool("EncryptMetadata"); ok {
		encryptMetadata = bool(b)
	}

	params := Params{
		V:               int(v),
		R:               int(r),
		Length:          int(length),
		O:               []byte(o),
		P:               int32(p),
		EncryptMetadata: encryptMetadata,
		ID0:             id0,
		Cipher:          CipherRC4,
	}
	params.U = []byte(u)

	if oe, ok := d.GetString("OE"); ok {
		params.OE = []byte(oe)
	}
	if ue, ok := d.GetString("UE"); ok {
		params.UE = []byte(ue)
	}

	if params.V >= 4 {
		if cfName, ok := d.GetName("StmF"); ok && cfName != "Identity" {
			if cf, ok := d.GetDict("CF"); ok {
				if stdCF, ok := cf.GetDict(cfName); ok {
					if cfm, ok := stdCF.GetName("CFM"); ok {
						switch cfm {
						case "AESV2":
							params.Cipher = CipherAESV2
						case "AESV3":
							params.Cipher = CipherAESV3
						}
					}
				}
			}
		}
	}

	return params, nil
}

// deriveKeyR2to4 computes the file encryption key per Algorithm 2 for
// revisions 2-4 (RC4 or AESV2, 40-128 bit keys).
func deriveKeyR2to4(p Params, password string) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(p.O)
	var pBytes [4]byte
	pBytes[0] = byte(p.P)
	pBytes[1] = byte(p.P >> 8)
	pBytes[2] = byte(p.P >> 16)
	pBytes[3] = byte(p.P >> 24)
	h.Write(pBytes[:])
	h.Write(p.ID0)
	if p.R >= 4 && !p.EncryptMetadata {
		h.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	sum := h.Sum(nil)

	keyLen := p.Length / 8
	if keyLen <= 0 || keyLen > 16 {
		keyLen = 5
	}
	key := sum[:keyLen]

	if p.R >= 3 {
		for i := 0; i < 50; i++ {
			sum2 := md5.Sum(key)
			key = sum2[:keyLen]
		}
	}
	return append([]byte(nil), key...)
}

// deriveKeyR6 computes the file encryption key per Algorithm 2.A (R5/R6,
// AES-256) from the user password: hash the password with /U's key salt,
// then unwrap /UE with AES-256-CBC, no padding, zero IV. /O and /OE are
// not used.
func deriveKeyR6(p Params, password string) ([]byte, error) {
	pw := []byte(password)
	if len(pw) > 127 {
		pw = pw[:127]
	}

	if len(p.U) < 48 {
		return nil, fmt.Errorf("encryption: /U too short for revision %d", p.R)
	}
	keySalt := p.U[40:48]

	intermediate := sha256.Sum256(append(append([]byte(nil), pw...), keySalt...))
	if p.R == 6 {
		intermediate = hardenedHashR6(pw, keySalt, nil)
	}

	block, err := aes.NewCipher(intermediate[:])
	if err != nil {
		return nil, err
	}
	if len(p.UE) < 32 {
		return nil, fmt.Errorf("encryption: /UE too short")
	}
	iv := make([]byte, aes.BlockSize)
	fileKey := make([]byte, 32)
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(fileKey, p.UE[:32])
	return fileKey, nil
}

// hardenedHashR6 implements the revision-6 hardened hash loop (ISO
// 32000-2 Algorithm 2.B): repeatedly hash, then choose SHA-256/384/512
// based on the remainder of the last round's output sum mod 3, until a
// round number >= 64 produces a last byte <= round-number-minus-32.
func hardenedHashR6(password, salt, extra []byte) [32]byte {
	input := append(append(append([]byte(nil), password...), salt...), extra...)
	k := sha256.Sum256(input)
	kSlice := k[:]

	for round := 0; ; round++ {
		k1 := bytes.Repeat(append(append(append([]byte(nil), password...), kSlice...), extra...), 64)

		block, _ := aes.NewCipher(kSlice[:16])
		cbc := cipher.NewCBCEncrypter(block, kSlice[16:32])
		e := make([]byte, len(k1))
		cbc.CryptBlocks(e, k1)

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			s := sha256.Sum256(e)
			kSlice = s[:]
		case 1:
			kSlice = sha384(e)
		case 2:
			kSlice = sha512sum(e)
		}

		// round counts from 0, so the 1-based round number is round+1.
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			var out [32]byte
			copy(out[:], kSlice[:32])
			return out
		}
	}
}

func padPassword(password string) []byte {
	pw := []byte(password)
	if len(pw) >= 32 {
		return pw[:32]
	}
	out := make([]byte, 32)
	copy(out, pw)
	copy(out[len(pw):], padBytes)
	return out
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, ok1 := hexNibble(s[2*i])
		lo, ok2 := hexNibble(s[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("invalid hex digit in %q", s)
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// EncryptMetadata reports the /Encrypt dictionary's /EncryptMetadata
// flag: false means XMP /Metadata streams are left in plaintext even
// though everything else in the document is encrypted.
func (h *Handler) EncryptMetadata() bool { return h.params.EncryptMetadata }

// ObjectKey derives the per-object key (Algorithm 1) used to
// decrypt strings and streams belonging to ref, for RC4 and AESV2.
// AESV3 (R6) uses the file key directly, with no per-object step.
func (h *Handler) ObjectKey(ref object.IndirectRef) []byte {
	if h.params.Cipher == CipherAESV3 {
		return h.fileKey
	}

	md := md5.New()
	md.Write(h.fileKey)
	md.Write([]byte{
		byte(ref.Number), byte(ref.Number >> 8), byte(ref.Number >> 16),
		byte(ref.Generation), byte(ref.Generation >> 8),
	})
	if h.params.Cipher == CipherAESV2 {
		md.Write([]byte{0x73, 0x41, 0x6c, 0x54}) // "sAlT"
	}
	sum := md.Sum(nil)

	n := len(h.fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

// DecryptBytes decrypts data belonging to ref (a stream's bytes, or a
// string's contents) using the handler's configured cipher.
func (h *Handler) DecryptBytes(ref object.IndirectRef, data []byte) ([]byte, error) {
	key := h.ObjectKey(ref)

	switch h.params.Cipher {
	case CipherRC4:
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("encryption: rc4 key setup: %w", err)
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil

	case CipherAESV2, CipherAESV3:
		if len(data) < aes.BlockSize {
			return nil, fmt.Errorf("encryption: AES stream shorter than one block")
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("encryption: aes key setup: %w", err)
		}
		iv := data[:aes.BlockSize]
		ciphertext := data[aes.BlockSize:]
		if len(ciphertext)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("encryption: AES ciphertext not block-aligned")
		}
		out := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
		return unpadPKCS7(out), nil

	default:
		return nil, fmt.Errorf("encryption: unknown cipher")
	}
}

func unpadPKCS7(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	pad := int(data[len(data)-1])
	if pad <= 0 || pad > len(data) || pad > aes.BlockSize {
		return data
	}
	return data[:len(data)-pad]
}

func sha384(data []byte) []byte {
	sum := sha512.Sum384(data)
	return sum[:]
}

func sha512sum(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}
