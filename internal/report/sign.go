package report

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// JWS is a flattened JSON web signature over a report. Payload is left
// empty when the signature is detached from the report file.
type JWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload,omitempty"`
	Signature string `json:"signature"`
}

var ErrBadSignature = errors.New("report signature does not verify")

type jwsHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

// SignDetached signs payload with an RSA private key in PEM form (PKCS#1 or
// PKCS#8) using RS256. kid is the schema digest the report was produced
// against, so a verifier can tell which database a signed report belongs to.
func SignDetached(payload, keyPEM []byte, kid string) (JWS, error) {
	priv, err := parseRSAPrivateKey(keyPEM)
	if err != nil {
		return JWS{}, err
	}
	hb, err := json.Marshal(jwsHeader{Alg: "RS256", Typ: "JOSE", Kid: kid})
	if err != nil {
		return JWS{}, err
	}
	protected := base64.RawURLEncoding.EncodeToString(hb)
	h := signingHash(protected, payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, h[:])
	if err != nil {
		return JWS{}, err
	}
	return JWS{Protected: protected, Signature: base64.RawURLEncoding.EncodeToString(sig)}, nil
}

// VerifyDetached checks sig against payload with an RSA public key in PEM
// form (PKIX or PKCS#1).
func VerifyDetached(payload []byte, sig JWS, pubPEM []byte) error {
	pub, err := parseRSAPublicKey(pubPEM)
	if err != nil {
		return err
	}
	hb, err := base64.RawURLEncoding.DecodeString(sig.Protected)
	if err != nil {
		return fmt.Errorf("%w: protected header: %v", ErrBadSignature, err)
	}
	var hdr jwsHeader
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return fmt.Errorf("%w: protected header: %v", ErrBadSignature, err)
	}
	if hdr.Alg != "RS256" {
		return fmt.Errorf("%w: unsupported alg %q", ErrBadSignature, hdr.Alg)
	}
	raw, err := base64.RawURLEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	h := signingHash(sig.Protected, payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], raw); err != nil {
		return ErrBadSignature
	}
	return nil
}

// SignFile signs the file at path and writes the signature next to it as
// path + ".jws".
func SignFile(path string, keyPEM []byte, kid string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sig, err := SignDetached(payload, keyPEM, kid)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return "", err
	}
	out := path + ".jws"
	return out, os.WriteFile(out, b, 0o644)
}

func signingHash(protected string, payload []byte) [32]byte {
	var sb strings.Builder
	sb.WriteString(protected)
	sb.WriteByte('.')
	sb.WriteString(base64.RawURLEncoding.EncodeToString(payload))
	return sha256.Sum256([]byte(sb.String()))
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T, want RSA", k)
	}
	return key, nil
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("verification key is %T, want RSA", k)
	}
	return key, nil
}
