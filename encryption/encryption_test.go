package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
	"testing"

	"github.com/tsawler/qdocgraph/object"
)

func newHandlerForTest(t *testing.T, c Cipher) *Handler {
	t.Helper()
	return &Handler{
		params:  Params{Cipher: c, Length: 128},
		fileKey: bytes.Repeat([]byte{0x42}, 16),
	}
}

func TestObjectKeyDiffersByReference(t *testing.T) {
	h := newHandlerForTest(t, CipherRC4)
	k1 := h.ObjectKey(object.IndirectRef{Number: 1, Generation: 0})
	k2 := h.ObjectKey(object.IndirectRef{Number: 2, Generation: 0})
	if bytes.Equal(k1, k2) {
		t.Fatal("object keys for different objects must differ")
	}
}

func TestObjectKeyIsFileKeyForAESV3(t *testing.T) {
	h := newHandlerForTest(t, CipherAESV3)
	key := h.ObjectKey(object.IndirectRef{Number: 7, Generation: 0})
	if !bytes.Equal(key, h.fileKey) {
		t.Fatal("AESV3 should use the file key directly, with no per-object derivation")
	}
}

func TestDecryptBytesRC4RoundTrips(t *testing.T) {
	h := newHandlerForTest(t, CipherRC4)
	ref := object.IndirectRef{Number: 5, Generation: 0}
	plain := []byte("hello, encrypted world")

	key := h.ObjectKey(ref)
	c, err := rc4.NewCipher(key)
	if err != nil {
		t.Fatalf("rc4.NewCipher: %v", err)
	}
	encrypted := make([]byte, len(plain))
	c.XORKeyStream(encrypted, plain)

	decrypted, err := h.DecryptBytes(ref, encrypted)
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if !bytes.Equal(decrypted, plain) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plain)
	}
}

func TestDecryptBytesAESV2RoundTrips(t *testing.T) {
	h := newHandlerForTest(t, CipherAESV2)
	ref := object.IndirectRef{Number: 9, Generation: 0}
	plain := []byte("sixteen byte msg")

	key := h.ObjectKey(ref)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	decrypted, err := h.DecryptBytes(ref, append(iv, ciphertext...))
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if !bytes.Equal(decrypted, plain) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plain)
	}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(pad)}, pad)
	return append(append([]byte(nil), data...), padding...)
}

func TestDeriveKeyR2to4IsDeterministic(t *testing.T) {
	params := Params{
		R:      3,
		Length: 128,
		O:      bytes.Repeat([]byte{0x01}, 32),
		P:      -44,
		ID0:    []byte("0123456789abcdef"),
	}
	k1 := deriveKeyR2to4(params, "secret")
	k2 := deriveKeyR2to4(params, "secret")
	if !bytes.Equal(k1, k2) {
		t.Fatal("key derivation must be deterministic for the same inputs")
	}
	k3 := deriveKeyR2to4(params, "different")
	if bytes.Equal(k1, k3) {
		t.Fatal("different passwords must derive different keys")
	}
}
