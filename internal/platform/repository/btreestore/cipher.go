package btreestore

import (
	"CipherDB/internal/domain"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc64"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32
	saltSize  = 16
	nonceSize = 12
	tagSize   = 16

	// kdfRounds is deliberately slow: the key is derived once per open.
	kdfRounds = 120_000

	// keyCheckPageID is the pseudo page id binding the header key-check
	// blob, so it can never be confused with a real page slot.
	keyCheckPageID = ^uint64(0)
)

// keyCheckPlain is the constant encrypted into the header at create time.
// A wrong passphrase fails to open this blob before any page is touched.
var keyCheckPlain = []byte("cipherdb.keycheck")

var crcTable = crc64.MakeTable(crc64.ECMA)

// pageCodec seals and opens page images. The page id is bound into every
// stored slot so an image can never be replayed into a different slot.
// Log frames additionally bind the transaction id, so a frame cannot be
// spliced into a different commit.
type pageCodec interface {
	overhead() int
	encode(pageID uint64, plaintext []byte) ([]byte, error)
	decode(pageID uint64, stored []byte) ([]byte, error)
	sealFrame(txID, pageID uint64, plaintext []byte) ([]byte, error)
	openFrame(txID, pageID uint64, stored []byte) ([]byte, error)
}

// deriveKey stretches the passphrase with the database's random salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, kdfRounds, keySize, sha256.New)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, domain.WrapIO("salt generation", err)
	}
	return salt, nil
}

// aeadCodec is AES-256-GCM with a fresh random nonce per write and the
// page id plus salt as associated data.
type aeadCodec struct {
	aead cipher.AEAD
	salt []byte
}

func newAEADCodec(passphrase string, salt []byte) (*aeadCodec, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aeadCodec{aead: aead, salt: salt}, nil
}

func (c *aeadCodec) overhead() int {
	return nonceSize + tagSize
}

func (c *aeadCodec) associatedData(pageID uint64) []byte {
	ad := make([]byte, 8+len(c.salt))
	binary.LittleEndian.PutUint64(ad, pageID)
	copy(ad[8:], c.salt)
	return ad
}

func (c *aeadCodec) frameAssociatedData(txID, pageID uint64) []byte {
	ad := make([]byte, 16+len(c.salt))
	binary.LittleEndian.PutUint64(ad, txID)
	binary.LittleEndian.PutUint64(ad[8:], pageID)
	copy(ad[16:], c.salt)
	return ad
}

func (c *aeadCodec) seal(ad, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, domain.WrapIO("nonce generation", err)
	}
	out := make([]byte, 0, nonceSize+len(plaintext)+tagSize)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, ad), nil
}

func (c *aeadCodec) open(ad []byte, pageID uint64, stored []byte) ([]byte, error) {
	if len(stored) < nonceSize+tagSize {
		return nil, &domain.CorruptPageError{PageID: pageID, Detail: "short page slot"}
	}
	nonce, ciphertext := stored[:nonceSize], stored[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, domain.ErrAuthFailure
	}
	return plain, nil
}

func (c *aeadCodec) encode(pageID uint64, plaintext []byte) ([]byte, error) {
	return c.seal(c.associatedData(pageID), plaintext)
}

func (c *aeadCodec) decode(pageID uint64, stored []byte) ([]byte, error) {
	return c.open(c.associatedData(pageID), pageID, stored)
}

func (c *aeadCodec) sealFrame(txID, pageID uint64, plaintext []byte) ([]byte, error) {
	return c.seal(c.frameAssociatedData(txID, pageID), plaintext)
}

func (c *aeadCodec) openFrame(txID, pageID uint64, stored []byte) ([]byte, error) {
	return c.open(c.frameAssociatedData(txID, pageID), pageID, stored)
}

// sealKeyCheck produces the header blob proving the key is right.
func (c *aeadCodec) sealKeyCheck() ([]byte, error) {
	return c.encode(keyCheckPageID, keyCheckPlain)
}

// verifyKeyCheck opens the header blob. Any failure means a wrong
// passphrase or a tampered header.
func (c *aeadCodec) verifyKeyCheck(blob []byte) error {
	plain, err := c.decode(keyCheckPageID, blob)
	if err != nil {
		return domain.ErrAuthFailure
	}
	if string(plain) != string(keyCheckPlain) {
		return domain.ErrAuthFailure
	}
	return nil
}

// crcCodec is the plaintext codec for databases opened without a
// passphrase. It keeps CorruptPage detection via CRC64 (ECMA).
type crcCodec struct{}

func (crcCodec) overhead() int {
	return 8
}

func (crcCodec) checksum(pageID uint64, payload []byte) uint64 {
	h := crc64.New(crcTable)
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], pageID)
	h.Write(idBuf[:])
	h.Write(payload)
	return h.Sum64()
}

func (c crcCodec) encode(pageID uint64, plaintext []byte) ([]byte, error) {
	out := make([]byte, 8+len(plaintext))
	binary.LittleEndian.PutUint64(out, c.checksum(pageID, plaintext))
	copy(out[8:], plaintext)
	return out, nil
}

func (c crcCodec) decode(pageID uint64, stored []byte) ([]byte, error) {
	if len(stored) < 8 {
		return nil, &domain.CorruptPageError{PageID: pageID, Detail: "short page slot"}
	}
	want := binary.LittleEndian.Uint64(stored)
	payload := stored[8:]
	if c.checksum(pageID, payload) != want {
		return nil, &domain.CorruptPageError{PageID: pageID, Detail: "checksum mismatch"}
	}
	return payload, nil
}

func (c crcCodec) frameChecksum(txID, pageID uint64, payload []byte) uint64 {
	h := crc64.New(crcTable)
	var idBuf [16]byte
	binary.LittleEndian.PutUint64(idBuf[:8], txID)
	binary.LittleEndian.PutUint64(idBuf[8:], pageID)
	h.Write(idBuf[:])
	h.Write(payload)
	return h.Sum64()
}

func (c crcCodec) sealFrame(txID, pageID uint64, plaintext []byte) ([]byte, error) {
	out := make([]byte, 8+len(plaintext))
	binary.LittleEndian.PutUint64(out, c.frameChecksum(txID, pageID, plaintext))
	copy(out[8:], plaintext)
	return out, nil
}

func (c crcCodec) openFrame(txID, pageID uint64, stored []byte) ([]byte, error) {
	if len(stored) < 8 {
		return nil, &domain.CorruptPageError{PageID: pageID, Detail: "short log frame"}
	}
	want := binary.LittleEndian.Uint64(stored)
	payload := stored[8:]
	if c.frameChecksum(txID, pageID, payload) != want {
		return nil, &domain.CorruptPageError{PageID: pageID, Detail: "log frame checksum mismatch"}
	}
	return payload, nil
}
