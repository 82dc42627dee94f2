package report

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKeys(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return privPEM, pubPEM
}

func TestSignAndVerifyFile(t *testing.T) {
	priv, pub := testKeys(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	payload := []byte(`{"summary":{"pass":true}}`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	sigPath, err := SignFile(path, priv, "abc123")
	if err != nil {
		t.Fatalf("SignFile: %v", err)
	}
	b, err := os.ReadFile(sigPath)
	if err != nil {
		t.Fatalf("read signature: %v", err)
	}
	var sig JWS
	if err := json.Unmarshal(b, &sig); err != nil {
		t.Fatalf("unmarshal signature: %v", err)
	}
	if sig.Payload != "" {
		t.Fatalf("detached signature carries payload %q", sig.Payload)
	}
	if err := VerifyDetached(payload, sig, pub); err != nil {
		t.Fatalf("VerifyDetached: %v", err)
	}
	if err := VerifyDetached([]byte(`{"summary":{"pass":false}}`), sig, pub); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload: got %v", err)
	}
}

func TestSignRejectsBadKey(t *testing.T) {
	if _, err := SignDetached([]byte("x"), []byte("not pem"), ""); err == nil {
		t.Fatal("expected error for non-PEM key")
	}
}
