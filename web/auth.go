// Package web implements the embedded HTTP discovery endpoint and the
// authenticated WebSocket telemetry/command interface (spec §6): static
// files + GET /ws JSON link, per-client auth challenge/response, and the
// batched sender/reader session pair. Grounded on
// original_source/src/interface/web/{mod,http,ws,auth}.rs and on the
// teacher's server/server.go websocket-upgrade/ping-pong pattern.
package web

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
)

const randomStringLength = 30

const randomStringAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// makeRandomString returns a fresh per-connection auth challenge (or the
// per-process secret key), grounded on auth.rs's OsRng-backed
// gen_ascii_chars. crypto/rand is the Go equivalent of OsRng: the
// unpredictable source, not math/rand.
func makeRandomString() (string, error) {
	buf := make([]byte, randomStringLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, randomStringLength)
	for i, b := range buf {
		out[i] = randomStringAlphabet[int(b)%len(randomStringAlphabet)]
	}
	return string(out), nil
}

// authenticate verifies a client's challenge-response digest: HMAC-
// SHA-512 of the challenge under the per-process secret key, base64-
// encoded, compared in constant time (spec §8 invariant 7 and S6). Any
// malformed base64 or wrong-length digest is rejected the same way a
// mismatched one is — no early return that could leak timing
// information about which check failed.
func authenticate(challenge, key, digestBase64 string) bool {
	want, err := base64.StdEncoding.DecodeString(digestBase64)
	if err != nil {
		want = nil
	}

	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(challenge))
	expected := mac.Sum(nil)

	if len(want) != len(expected) {
		// Still run a constant-time comparison against something of the
		// right shape so this branch's timing doesn't obviously differ
		// from the matching-length case.
		subtle.ConstantTimeCompare(expected, expected)
		return false
	}
	return subtle.ConstantTimeCompare(want, expected) == 1
}
