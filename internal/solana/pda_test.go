package solana

import (
	"testing"

	"github.com/mr-tron/base58"
)

const (
	testMint    = "So11111111111111111111111111111111111111112"
	testProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestDeriveCurvePDA(t *testing.T) {
	pda, err := DeriveCurvePDA(testMint, testProgram)
	if err != nil {
		t.Fatalf("DeriveCurvePDA: %v", err)
	}
	if pda == "" {
		t.Fatal("expected non-empty PDA")
	}

	// Derivation is deterministic.
	again, err := DeriveCurvePDA(testMint, testProgram)
	if err != nil {
		t.Fatalf("DeriveCurvePDA: %v", err)
	}
	if pda != again {
		t.Errorf("PDA not deterministic: %s vs %s", pda, again)
	}

	// The derived point must be off the ed25519 curve.
	decoded, err := base58.Decode(pda)
	if err != nil {
		t.Fatalf("decode derived PDA: %v", err)
	}
	if isOnCurve(decoded) {
		t.Error("derived PDA lies on the curve")
	}
}

func TestDeriveTreasuryPDA_DiffersFromCurve(t *testing.T) {
	curve, err := DeriveCurvePDA(testMint, testProgram)
	if err != nil {
		t.Fatalf("DeriveCurvePDA: %v", err)
	}
	treasury, err := DeriveTreasuryPDA(testMint, testProgram)
	if err != nil {
		t.Fatalf("DeriveTreasuryPDA: %v", err)
	}
	if curve == treasury {
		t.Error("curve and treasury PDAs must differ")
	}
}

func TestDerivePDA_InvalidInput(t *testing.T) {
	if _, err := DeriveCurvePDA("not-base58-0OIl", testProgram); err == nil {
		t.Error("expected error for invalid mint")
	}
	if _, err := DeriveCurvePDA("abc", testProgram); err == nil {
		t.Error("expected error for short mint")
	}
}
