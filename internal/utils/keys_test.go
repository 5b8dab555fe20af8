package utils

import (
	"testing"
)

func TestGeneratedKeysRoundTrip(t *testing.T) {
	pubPem, privPem, err := GenerateKeysPem(1024)
	if err != nil {
		t.Fatal(err)
	}

	priv, err := ParsePrivateKeyPem(privPem)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := ParsePublicKeyPem(pubPem)
	if err != nil {
		t.Fatal(err)
	}
	if !priv.PublicKey.Equal(pub) {
		t.Error("expected the published key to match the private key")
	}

	derived, err := PublicKeyPemFromPrivate(privPem)
	if err != nil {
		t.Fatal(err)
	}
	if derived != pubPem {
		t.Error("expected the derived public pem to match the generated one")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := ParsePrivateKeyPem("not a key"); err == nil {
		t.Error("expected an error for a malformed private key")
	}
	if _, err := ParsePublicKeyPem("not a key"); err == nil {
		t.Error("expected an error for a malformed public key")
	}
}
