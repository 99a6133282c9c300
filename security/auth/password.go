package auth

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// ScrambleLength is the size of the nonce the server sends in the greeting
// packet and of the token the client answers with.
const ScrambleLength = 20

// NativePasswordHash computes the value mysql_native_password stores for a
// password: '*' followed by the uppercase hex of SHA1(SHA1(password)).
func NativePasswordHash(password string) string {
	if len(password) == 0 {
		return ""
	}

	hash := sha1.New()
	hash.Write([]byte(password))
	s1 := hash.Sum(nil)

	hash.Reset()
	hash.Write(s1)
	s2 := hash.Sum(nil)

	return fmt.Sprintf("*%s", strings.ToUpper(hex.EncodeToString(s2)))
}

// StripPasswordHash normalizes a password column value for storage: the
// leading '*' of the 5.7 format is removed.
func StripPasswordHash(stored string) string {
	return strings.TrimPrefix(stored, "*")
}

// ScrambleToken computes the client's reply to a native-password challenge:
// SHA1(password) XOR SHA1(scramble ‖ SHA1(SHA1(password))).
func ScrambleToken(password string, scramble []byte) []byte {
	if len(password) == 0 {
		return nil
	}

	hash := sha1.New()
	hash.Write([]byte(password))
	stage1 := hash.Sum(nil)

	hash.Reset()
	hash.Write(stage1)
	stage2 := hash.Sum(nil)

	hash.Reset()
	hash.Write(scramble)
	hash.Write(stage2)
	token := hash.Sum(nil)

	for i := range token {
		token[i] ^= stage1[i]
	}
	return token
}

// CheckScramble verifies a native-password challenge response against the
// stored double-SHA1 hex. It returns whether the client knows the password
// and, when it does, SHA1(password), which the proxy replays to the
// backend handshake.
//
// A passwordless account (empty stored hex) authenticates only an empty
// token; a non-empty stored hex never authenticates an empty token.
func CheckScramble(storedHex string, token, scramble []byte) (bool, []byte) {
	storedHex = StripPasswordHash(storedHex)

	if len(token) == 0 {
		return storedHex == "", nil
	}
	if len(token) != ScrambleLength {
		return false, nil
	}

	stored := make([]byte, ScrambleLength)
	if storedHex != "" {
		decoded, err := hex.DecodeString(storedHex)
		if err != nil || len(decoded) != ScrambleLength {
			return false, nil
		}
		copy(stored, decoded)
	}

	hash := sha1.New()
	hash.Write(scramble)
	hash.Write(stored)
	step1 := hash.Sum(nil)

	passwordSHA1 := make([]byte, ScrambleLength)
	for i := range passwordSHA1 {
		passwordSHA1[i] = token[i] ^ step1[i]
	}

	hash.Reset()
	hash.Write(passwordSHA1)
	candidate := hash.Sum(nil)

	if subtle.ConstantTimeCompare(candidate, stored) != 1 {
		return false, nil
	}
	return true, passwordSHA1
}
