package vault

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, KeySize))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New(testKey('a'), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []string{
		"plain ascii",
		"multi\nline\tvalue",
		"unicode: жүйе қорғалған 防護 🎯",
		" leading and trailing ",
		"1985-04-12",
	}
	for _, plaintext := range cases {
		token, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if token == plaintext {
			t.Fatalf("token equals plaintext for %q", plaintext)
		}
		got, err := v.Open(token)
		if err != nil {
			t.Fatalf("Open(%q): %v", plaintext, err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestEmptyPlaintextEncodesToEmptyToken(t *testing.T) {
	v, err := New(testKey('a'), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, err := v.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt empty: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
	if got := v.Decrypt(""); got != "" {
		t.Fatalf("expected empty plaintext, got %q", got)
	}
}

func TestDecryptWrongKeyReturnsSentinel(t *testing.T) {
	v1, _ := New(testKey('a'), nil)
	v2, _ := New(testKey('b'), nil)

	token, err := v1.Encrypt("confidential")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Request path never raises; the sentinel is the empty string.
	if got := v2.Decrypt(token); got != "" {
		t.Fatalf("expected empty sentinel, got %q", got)
	}
	// Strict path reports the failure.
	if _, err := v2.Open(token); err == nil {
		t.Fatal("expected error opening token under wrong key")
	}
}

func TestDecryptCorruptTokens(t *testing.T) {
	v, _ := New(testKey('a'), nil)
	for _, token := range []string{"not-base64!!", "c2hvcnQ", "AAAA"} {
		if got := v.Decrypt(token); got != "" {
			t.Fatalf("corrupt token %q revealed %q", token, got)
		}
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not base64 at all %%%",
		base64.StdEncoding.EncodeToString([]byte("short")),
	}
	for _, key := range cases {
		if _, err := ParseKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestEncryptedStringSealReveal(t *testing.T) {
	v, _ := New(testKey('a'), nil)

	field, err := Seal(v, "jane@example.org")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if field.Reveal(v) != "jane@example.org" {
		t.Fatalf("Reveal mismatch")
	}

	var scanned EncryptedString
	if err := scanned.Scan([]byte(field.Token())); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned != field {
		t.Fatalf("scanned field differs from sealed field")
	}

	val, err := field.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if val.(string) != field.Token() {
		t.Fatalf("Value mismatch")
	}
}

func TestHasherNormalizesInput(t *testing.T) {
	h, err := NewHasher("unit-test-lookup-secret")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	base := h.Hash("jane@example.org")
	for _, variant := range []string{"JANE@example.org", "  jane@example.org \n", "Jane@Example.Org"} {
		if h.Hash(variant) != base {
			t.Fatalf("digest for %q differs from normalized form", variant)
		}
	}
	if h.Hash("john@example.org") == base {
		t.Fatal("distinct emails produced equal digests")
	}

	other, _ := NewHasher("another-secret")
	if other.Hash("jane@example.org") == base {
		t.Fatal("digest does not depend on the secret")
	}
}
