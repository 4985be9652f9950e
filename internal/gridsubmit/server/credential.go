package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// OutputCredential derives the download credential for one target (a job
// name, instance name, batch id or physical file name). The credential is an
// HMAC of the target keyed by the owning account's authenticator, so output
// URLs can be handed to browsers and scripts without exposing the
// authenticator itself.
func OutputCredential(authenticator string, target string) string {
	mac := hmac.New(sha256.New, []byte(authenticator))
	mac.Write([]byte(target))
	return hex.EncodeToString(mac.Sum(nil))
}

func ValidCredential(authenticator string, target string, credential string) bool {
	want := OutputCredential(authenticator, target)
	return hmac.Equal([]byte(want), []byte(credential))
}
