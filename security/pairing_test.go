package security

import "testing"

func TestGeneratePairingCodeIsSixDigits(t *testing.T) {
	code := GeneratePairingCode()
	if len(code.Raw()) != 6 {
		t.Fatalf("expected 6 digits, got %q", code.Raw())
	}
	for _, c := range code.Raw() {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in pairing code: %q", code.Raw())
		}
	}
}

func TestPairingCodeDisplayHyphenatesAfterThirdDigit(t *testing.T) {
	code, err := ParsePairingCode("123456")
	if err != nil {
		t.Fatalf("ParsePairingCode: %v", err)
	}
	if got := code.Display(); got != "123-456" {
		t.Fatalf("got %q", got)
	}
}

func TestParsePairingCodeAcceptsHyphenatedForm(t *testing.T) {
	code, err := ParsePairingCode("123-456")
	if err != nil {
		t.Fatalf("ParsePairingCode: %v", err)
	}
	if code.Raw() != "123456" {
		t.Fatalf("got %q", code.Raw())
	}
}

func TestParsePairingCodeRejectsWrongLength(t *testing.T) {
	if _, err := ParsePairingCode("12345"); err == nil {
		t.Fatalf("expected error for short code")
	}
}

func TestParsePairingCodeRejectsNonDigits(t *testing.T) {
	if _, err := ParsePairingCode("12345a"); err == nil {
		t.Fatalf("expected error for non-digit code")
	}
}

func TestDeriveSessionKeyDeterministicPerSalt(t *testing.T) {
	code, _ := ParsePairingCode("123456")

	key1, err := DeriveSessionKey(code, []byte("test_salt"))
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	key2, err := DeriveSessionKey(code, []byte("test_salt"))
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	if key1 != key2 {
		t.Fatalf("expected deterministic derivation for the same salt")
	}

	key3, err := DeriveSessionKey(code, []byte("different_salt"))
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	if key1 == key3 {
		t.Fatalf("expected different keys for different salts")
	}
}
