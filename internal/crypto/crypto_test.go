package crypto

import (
	"errors"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignPolicyRecoversWallet(t *testing.T) {
	wallet, err := NewSignerFromHex("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("NewSignerFromHex: %v", err)
	}
	session, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}

	p := Policy{
		Challenge:  "a3f1c2d4-challenge",
		Scope:      "console",
		Wallet:     wallet.Address(),
		SessionKey: session.Address(),
		ExpiresAt:  1_760_000_000,
		Allowances: []Allowance{{Asset: "ytest.usd", Amount: "1000000000"}},
	}
	sig, err := wallet.SignPolicy("ghost-yield", p)
	if err != nil {
		t.Fatalf("SignPolicy: %v", err)
	}

	got, err := RecoverAddress(PolicyDigest("ghost-yield", p), sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != wallet.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), wallet.Address().Hex())
	}

	// A different application name is a different domain.
	other, err := RecoverAddress(PolicyDigest("other-app", p), sig)
	if err == nil && other == wallet.Address() {
		t.Fatalf("signature verified under a different domain")
	}
}

func TestSignPayloadUsesPlainKeccak(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	payload := []byte(`[7,"get_channels",{"participant":"0x01"},1700000000000]`)
	sig, err := s.SignPayload(payload)
	if err != nil {
		t.Fatalf("SignPayload: %v", err)
	}
	got, err := RecoverAddress(ethcrypto.Keccak256(payload), sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := WriteKeyFile(path, testKeyHex, "hunter2"); err != nil {
		t.Fatalf("WriteKeyFile: %v", err)
	}

	pk, err := ResolveKey(KeySource{FilePath: path, Password: "hunter2"})
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	raw, err := ResolveKey(KeySource{Raw: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("ResolveKey raw: %v", err)
	}
	if ethcrypto.PubkeyToAddress(pk.PublicKey) != ethcrypto.PubkeyToAddress(raw.PublicKey) {
		t.Fatalf("file key and raw key differ")
	}

	if _, err := ResolveKey(KeySource{FilePath: path, Password: "wrong"}); err == nil {
		t.Fatalf("expected error for wrong password")
	}
}

func TestResolveKeyMissing(t *testing.T) {
	if _, err := ResolveKey(KeySource{}); !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
	if (KeySource{}).Configured() {
		t.Fatalf("empty source reported as configured")
	}
}
