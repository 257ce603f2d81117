package webhooks

import "testing"

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"orders":[]}`)
	sig := SignHMAC("s3cret", body)
	if len(sig) != 64 { t.Fatalf("sig len = %d", len(sig)) }
	if !VerifyHMAC("s3cret", body, sig) { t.Fatalf("valid signature rejected") }
	if !VerifyHMAC("s3cret", body, "sha256="+sig) { t.Fatalf("prefixed signature rejected") }
	if VerifyHMAC("other", body, sig) { t.Fatalf("wrong secret accepted") }
	if VerifyHMAC("s3cret", []byte(`{}`), sig) { t.Fatalf("tampered body accepted") }
	if VerifyHMAC("s3cret", body, "zz") { t.Fatalf("non-hex accepted") }
	if VerifyHMAC("", body, SignHMAC("", body)) { t.Fatalf("empty secret must never verify") }
}
