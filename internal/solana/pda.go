package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Seed prefixes for the launch program's derived accounts.
const (
	curveSeedPrefix    = "bonding_curve"
	treasurySeedPrefix = "treasury"
)

// DeriveCurvePDA derives the bonding curve account address for a mint.
// Seeds: ["bonding_curve", mint].
func DeriveCurvePDA(mint, programID string) (string, error) {
	return deriveForMint(curveSeedPrefix, mint, programID)
}

// DeriveTreasuryPDA derives the treasury account address for a mint.
// Seeds: ["treasury", mint].
func DeriveTreasuryPDA(mint, programID string) (string, error) {
	return deriveForMint(treasurySeedPrefix, mint, programID)
}

func deriveForMint(prefix, mint, programID string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint %s: %w", mint, err)
	}
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", fmt.Errorf("decode program id %s: %w", programID, err)
	}
	if len(mintBytes) != 32 || len(programBytes) != 32 {
		return "", fmt.Errorf("mint and program id must be 32 bytes")
	}

	seeds := [][]byte{[]byte(prefix), mintBytes}
	pda := derivePDA(seeds, programBytes)
	if pda == "" {
		return "", fmt.Errorf("no valid bump for %s PDA of %s", prefix, mint)
	}
	return pda, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// sha256(seeds || bump || programID || "ProgramDerivedAddress"), taking
// the first bump from 255 downward whose hash is off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
