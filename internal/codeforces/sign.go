package codeforces

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Sign computes the apiSig parameter for an authorized Codeforces call:
// nonce + sha512hex(nonce + "/" + method + "?" + sortedParams + "#" + secret).
// Parameters are sorted by key, then by value.
func Sign(method string, params url.Values, secret, nonce string) string {
	type pair struct{ key, value string }
	pairs := make([]pair, 0, len(params))
	for key, values := range params {
		for _, v := range values {
			pairs = append(pairs, pair{key, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.key + "=" + p.value
	}

	sum := sha512.Sum512([]byte(nonce + "/" + method + "?" + strings.Join(parts, "&") + "#" + secret))
	return nonce + hex.EncodeToString(sum[:])
}

// randomNonce returns six random characters
func randomNonce() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "abcdef"
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf)
}
