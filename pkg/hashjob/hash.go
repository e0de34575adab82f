package hashjob

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/md4"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/encoding/unicode"
)

// computeHash returns the hex digest of plaintext under algo. WPA-family
// algorithms derive a PBKDF2-HMAC-SHA1 key from plaintext and ssid, the
// standard WPA2-PSK construction; ntlm hashes UTF-16LE plaintext with MD4.
func computeHash(algo, plaintext, ssid string) (string, error) {
	switch strings.ToLower(algo) {
	case "md5":
		sum := md5.Sum([]byte(plaintext))
		return hex.EncodeToString(sum[:]), nil
	case "sha1":
		sum := sha1.Sum([]byte(plaintext))
		return hex.EncodeToString(sum[:]), nil
	case "sha256":
		sum := sha256.Sum256([]byte(plaintext))
		return hex.EncodeToString(sum[:]), nil
	case "sha512":
		sum := sha512.Sum512([]byte(plaintext))
		return hex.EncodeToString(sum[:]), nil
	case "ntlm":
		utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(plaintext)
		if err != nil {
			return "", fmt.Errorf("encode ntlm plaintext: %w", err)
		}
		sum := md4.New()
		sum.Write([]byte(utf16le))
		return hex.EncodeToString(sum.Sum(nil)), nil
	case "wpa2", "wpa", "pbkdf2-sha1":
		if ssid == "" {
			return "", fmt.Errorf("wpa2 hash mode requires an ssid")
		}
		key := pbkdf2.Key([]byte(plaintext), []byte(ssid), 4096, 32, sha1.New)
		return hex.EncodeToString(key), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}
