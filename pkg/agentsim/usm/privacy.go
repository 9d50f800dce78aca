package usm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"
	"fmt"

	"github.com/gosnmp/gosnmp"
)

// Encrypt encrypts plaintext (a BER-encoded scoped PDU) under proto using
// key, returning the ciphertext and the 8-byte privParams salt to carry on
// the wire.
func Encrypt(proto gosnmp.SnmpV3PrivProtocol, key []byte, engineBoots, engineTime uint32, salt uint64, plaintext []byte) ([]byte, []byte, error) {
	switch proto {
	case gosnmp.DES:
		return encryptDESCBC(key, engineBoots, salt, plaintext)
	case gosnmp.AES, gosnmp.AES192, gosnmp.AES256:
		return encryptAESCFB(keyForAES(proto, key), engineBoots, engineTime, salt, plaintext)
	default:
		return nil, nil, fmt.Errorf("usm: unsupported privacy protocol %v", proto)
	}
}

// Decrypt reverses Encrypt given the privParams salt read off the wire.
func Decrypt(proto gosnmp.SnmpV3PrivProtocol, key []byte, engineBoots, engineTime uint32, privParams []byte, ciphertext []byte) ([]byte, error) {
	switch proto {
	case gosnmp.DES:
		return decryptDESCBC(key, privParams, ciphertext)
	case gosnmp.AES, gosnmp.AES192, gosnmp.AES256:
		return decryptAESCFB(keyForAES(proto, key), engineBoots, engineTime, privParams, ciphertext)
	default:
		return nil, fmt.Errorf("usm: unsupported privacy protocol %v", proto)
	}
}

// keyForAES truncates the localized key to the width AES-128/192/256
// requires; RFC 3414 localization always yields a key at least 16 bytes
// (MD5) or 20 bytes (SHA-1) long, so only AES-256 needs the full SHA key.
func keyForAES(proto gosnmp.SnmpV3PrivProtocol, key []byte) []byte {
	width := 16
	switch proto {
	case gosnmp.AES192:
		width = 24
	case gosnmp.AES256:
		width = 32
	}
	if len(key) < width {
		return key
	}
	return key[:width]
}

func encryptDESCBC(key []byte, engineBoots uint32, salt uint64, plaintext []byte) ([]byte, []byte, error) {
	if len(key) < 16 {
		return nil, nil, fmt.Errorf("usm: DES key too short (%d bytes)", len(key))
	}
	desKey := key[:8]
	preIV := key[8:16]

	privParams := make([]byte, 8)
	binary.BigEndian.PutUint32(privParams[0:4], engineBoots)
	binary.BigEndian.PutUint32(privParams[4:8], uint32(salt))

	iv := xor8(preIV, privParams)

	block, err := des.NewCipher(desKey)
	if err != nil {
		return nil, nil, err
	}
	padded := pad8(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, privParams, nil
}

func decryptDESCBC(key []byte, privParams []byte, ciphertext []byte) ([]byte, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("usm: DES key too short (%d bytes)", len(key))
	}
	if len(privParams) != 8 {
		return nil, fmt.Errorf("usm: DES privParams must be 8 bytes, got %d", len(privParams))
	}
	if len(ciphertext)%8 != 0 {
		return nil, fmt.Errorf("usm: DES ciphertext not block-aligned (%d bytes)", len(ciphertext))
	}
	desKey := key[:8]
	preIV := key[8:16]
	iv := xor8(preIV, privParams)

	block, err := des.NewCipher(desKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad8(out)
}

func encryptAESCFB(key []byte, engineBoots, engineTime uint32, salt uint64, plaintext []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	privParams := make([]byte, 8)
	binary.BigEndian.PutUint64(privParams, salt)

	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv[0:4], engineBoots)
	binary.BigEndian.PutUint32(iv[4:8], engineTime)
	copy(iv[8:16], privParams)

	out := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(out, plaintext)
	return out, privParams, nil
}

func decryptAESCFB(key []byte, engineBoots, engineTime uint32, privParams []byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(privParams) != 8 {
		return nil, fmt.Errorf("usm: AES privParams must be 8 bytes, got %d", len(privParams))
	}
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv[0:4], engineBoots)
	binary.BigEndian.PutUint32(iv[4:8], engineTime)
	copy(iv[8:16], privParams)

	out := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, ciphertext)
	return out, nil
}

func xor8(a, b []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// pad8 pads plaintext to a multiple of 8 bytes with zero bytes, the padding
// scheme RFC 3414's DES-CBC privacy protocol specifies.
func pad8(b []byte) []byte {
	rem := len(b) % 8
	if rem == 0 {
		return b
	}
	return append(append([]byte{}, b...), make([]byte, 8-rem)...)
}

// unpad8 is a no-op beyond validating block alignment: DES-CBC zero-padding
// is not self-delimiting, so the scoped PDU's own BER length prefix is what
// tells the caller where the real content ends.
func unpad8(b []byte) ([]byte, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("usm: decrypted DES payload not block-aligned (%d bytes)", len(b))
	}
	return b, nil
}
