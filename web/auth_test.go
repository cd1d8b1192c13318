package web

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func digestFor(key, challenge string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestAuthenticate(t *testing.T) {
	Convey("Given challenge \"abc\" and key \"k\"", t, func() {
		challenge, key := "abc", "k"
		digest := digestFor(key, challenge)

		Convey("the correct digest authenticates", func() {
			So(authenticate(challenge, key, digest), ShouldBeTrue)
		})

		Convey("flipping a bit in the digest fails authentication", func() {
			raw, err := base64.StdEncoding.DecodeString(digest)
			So(err, ShouldBeNil)
			raw[0] ^= 0x01
			flipped := base64.StdEncoding.EncodeToString(raw)
			So(authenticate(challenge, key, flipped), ShouldBeFalse)
		})

		Convey("a malformed base64 digest fails authentication", func() {
			So(authenticate(challenge, key, "not-valid-base64!!"), ShouldBeFalse)
		})

		Convey("the wrong key fails authentication", func() {
			So(authenticate(challenge, "wrong-key", digest), ShouldBeFalse)
		})
	})
}

func TestMakeRandomStringIsUnique(t *testing.T) {
	Convey("Successive calls produce distinct, fixed-length strings", t, func() {
		a, err := makeRandomString()
		So(err, ShouldBeNil)
		b, err := makeRandomString()
		So(err, ShouldBeNil)

		So(len(a), ShouldEqual, randomStringLength)
		So(a, ShouldNotEqual, b)
	})
}
