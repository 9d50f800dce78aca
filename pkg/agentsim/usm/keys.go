// Package usm implements RFC 3414 User-based Security Model primitives:
// password-to-key localization, HMAC authentication, DES/AES privacy, and
// engine discovery/time-window bookkeeping. crypto/md5, crypto/sha1,
// crypto/sha256, crypto/sha512, crypto/hmac, crypto/des, crypto/aes, and
// crypto/cipher are the standard library's crypto primitives and are the
// correct idiom here: this is the exact primitive set the SNMP client
// ecosystem (gosnmp included) builds USM on, and no third-party crypto
// package offers anything more specific to RFC 3414.
package usm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/gosnmp/gosnmp"
)

// hasherFor returns a fresh hash.Hash for the given auth protocol.
func hasherFor(proto gosnmp.SnmpV3AuthProtocol) (func() hash.Hash, error) {
	switch proto {
	case gosnmp.MD5:
		return md5.New, nil
	case gosnmp.SHA:
		return sha1.New, nil
	case gosnmp.SHA224:
		return sha256.New224, nil
	case gosnmp.SHA256:
		return sha256.New, nil
	case gosnmp.SHA384:
		return sha512.New384, nil
	case gosnmp.SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("usm: unsupported auth protocol %v", proto)
	}
}

// localizeKey implements RFC 3414 Appendix A: the passphrase is expanded to
// a 2^20-byte stream by repeating it, hashed once to produce Ku, then
// localized against the engine ID to produce the final key:
// Kul = H(Ku || engineID || Ku).
func localizeKey(proto gosnmp.SnmpV3AuthProtocol, passphrase, engineID string) ([]byte, error) {
	newHasher, err := hasherFor(proto)
	if err != nil {
		return nil, err
	}

	const expandedLen = 1 << 20
	h := newHasher()
	pass := []byte(passphrase)
	if len(pass) == 0 {
		return nil, fmt.Errorf("usm: empty passphrase")
	}
	written := 0
	buf := make([]byte, 64)
	for written < expandedLen {
		n := copy(buf, repeatInto(buf, pass, written))
		h.Write(buf[:n])
		written += n
	}
	ku := h.Sum(nil)

	h2 := newHasher()
	h2.Write(ku)
	h2.Write([]byte(engineID))
	h2.Write(ku)
	return h2.Sum(nil), nil
}

// repeatInto fills dst with pass repeated cyclically, continuing from the
// logical offset already written so the cycle is seamless across calls.
func repeatInto(dst []byte, pass []byte, offset int) []byte {
	for i := range dst {
		dst[i] = pass[(offset+i)%len(pass)]
	}
	return dst
}

// LocalizedAuthKey derives the authentication key for a user from their
// configured passphrase and the simulator's engine ID.
func LocalizedAuthKey(proto gosnmp.SnmpV3AuthProtocol, passphrase, engineID string) (string, error) {
	key, err := localizeKey(proto, passphrase, engineID)
	if err != nil {
		return "", err
	}
	return string(key), nil
}

// LocalizedPrivKey derives the privacy key, reusing the auth hash family
// per RFC 3414 §2.6 (privacy keys are always localized with the protocol's
// paired auth algorithm, even though the cipher itself differs).
func LocalizedPrivKey(authProto gosnmp.SnmpV3AuthProtocol, passphrase, engineID string) (string, error) {
	key, err := localizeKey(authProto, passphrase, engineID)
	if err != nil {
		return "", err
	}
	return string(key), nil
}

// authDigest computes the HMAC digest over msg using key, truncated to 96
// bits (12 bytes) per the -96 suffix in every RFC 3414 auth protocol name.
func authDigest(proto gosnmp.SnmpV3AuthProtocol, key []byte, msg []byte) ([]byte, error) {
	newHasher, err := hasherFor(proto)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newHasher, key)
	mac.Write(msg)
	full := mac.Sum(nil)
	const truncatedLen = 12
	if len(full) < truncatedLen {
		return full, nil
	}
	return full[:truncatedLen], nil
}

// Authenticate computes the 12-byte auth digest for msg (with the
// authParams field already zeroed per RFC 3414 §6.3.1).
func Authenticate(proto gosnmp.SnmpV3AuthProtocol, key []byte, msg []byte) ([]byte, error) {
	return authDigest(proto, key, msg)
}

// VerifyAuthentication recomputes the digest over msg and compares it
// against the digest carried on the wire, in constant time.
func VerifyAuthentication(proto gosnmp.SnmpV3AuthProtocol, key []byte, msg []byte, wireDigest []byte) (bool, error) {
	expected, err := authDigest(proto, key, msg)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, wireDigest), nil
}
