// Package encryption implements the PDF standard security handler: key
// derivation from a user or owner password (ISO 32000-2 Algorithms 2,
// 2.A, 2.B) and RC4/AES-CBC decryption of string and stream data, keyed
// per-object per Algorithm 1.
//
// The teacher has no encryption support at all, and none of the pack's
// other PDF-reading repos implement the standard security handler
// directly (they delegate to pdfcpu or poppler). This package is new,
// built directly from ISO 32000-2 and cross-checked against
// original_source/libqpdf/QPDF_encryption.cc's key-derivation loops.
// Every primitive the handler needs — MD5 (required by the legacy R2-4
// key derivation; there is no way to implement Algorithm 2 without it),
// RC4, AES-CBC, and SHA-256/384/512 (R5/R6) — is stdlib: crypto/md5,
// crypto/rc4, crypto/aes, crypto/cipher, crypto/sha256, crypto/sha512.
// golang.org/x/crypto is
// deliberately not wired (see DESIGN.md).
package encryption
