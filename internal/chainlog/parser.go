// Package chainlog decodes launch-program transaction logs into typed
// events. Log lines are the only wire format the program emits; the
// parser owns every pattern so the indexer never touches raw text.
package chainlog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"curve-engine/internal/domain"
	"curve-engine/internal/solana"
)

// EventKind classifies a decoded transaction.
type EventKind string

const (
	KindCreation     EventKind = "CREATION"
	KindBuy          EventKind = "BUY"
	KindSell         EventKind = "SELL"
	KindUnrecognized EventKind = "UNRECOGNIZED"
)

// Event is a decoded launch-program transaction. Amounts are in the
// units the program logs them: whole tokens and SOL. Callers convert
// to base units.
type Event struct {
	Kind      EventKind
	Signature string
	Slot      int64
	BlockTime int64 // unix ms

	Mint   string
	Trader string // fee payer, accountKeys[0]

	// Creation fields
	Name   string
	Symbol string

	// Trade fields
	TokenAmount float64 // whole tokens
	SolAmount   float64 // SOL
	Fee         float64 // SOL

	// Reason explains an unrecognized classification.
	Reason string
}

// Direction maps the event kind to a trade direction. Only valid for
// buy and sell events.
func (e *Event) Direction() domain.TradeDirection {
	if e.Kind == KindSell {
		return domain.DirectionSell
	}
	return domain.DirectionBuy
}

// Instruction markers emitted by the launch program.
const (
	markerBuy    = "Instruction: Buy"
	markerSell   = "Instruction: Sell"
	markerCreate = "Instruction: Create"
)

// Parser extracts events from transaction logs.
type Parser struct {
	// creationPattern matches "Token created successfully: NAME (SYMBOL)".
	creationPattern *regexp.Regexp
	// tradePattern matches "... N tokens for X SOL (fee: Y SOL)".
	tradePattern *regexp.Regexp
}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{
		creationPattern: regexp.MustCompile(`Token created successfully: (.+) \((.+)\)`),
		tradePattern:    regexp.MustCompile(`(\d+) tokens for ([\d.]+) SOL \(fee: ([\d.]+) SOL\)`),
	}
}

// Parse decodes a transaction into an event. Failed transactions and
// logs that match no known pattern come back as KindUnrecognized with
// a reason; the caller skips those without stopping the stream.
func (p *Parser) Parse(tx *solana.Transaction) *Event {
	ev := &Event{
		Kind:      KindUnrecognized,
		Signature: tx.Signature,
		Slot:      tx.Slot,
		BlockTime: tx.BlockTime * 1000,
	}

	if tx.Meta == nil {
		ev.Reason = "missing transaction meta"
		return ev
	}
	if tx.Meta.Err != nil {
		ev.Reason = "transaction failed on chain"
		return ev
	}

	logs := tx.Meta.LogMessages

	isCreate := containsMarker(logs, markerCreate)
	isBuy := containsMarker(logs, markerBuy)
	isSell := containsMarker(logs, markerSell)

	switch {
	case isCreate:
		return p.parseCreation(tx, logs, ev)
	case isBuy:
		ev.Kind = KindBuy
		return p.parseTrade(tx, logs, ev)
	case isSell:
		ev.Kind = KindSell
		return p.parseTrade(tx, logs, ev)
	default:
		ev.Reason = "no instruction marker in logs"
		return ev
	}
}

// parseCreation extracts the token name, symbol and mint address from
// creation logs.
func (p *Parser) parseCreation(tx *solana.Transaction, logs []string, ev *Event) *Event {
	for _, line := range logs {
		if m := p.creationPattern.FindStringSubmatch(line); m != nil {
			ev.Name = m[1]
			ev.Symbol = m[2]
		}
		if idx := strings.Index(line, "Mint address: "); idx >= 0 {
			ev.Mint = strings.TrimSpace(line[idx+len("Mint address: "):])
		}
	}

	if ev.Mint == "" {
		ev.Kind = KindUnrecognized
		ev.Reason = "creation without mint address"
		return ev
	}
	if !validAddress(ev.Mint) {
		ev.Kind = KindUnrecognized
		ev.Reason = "invalid mint address: " + ev.Mint
		return ev
	}

	ev.Kind = KindCreation
	ev.Trader = feePayer(tx)
	return ev
}

// parseTrade extracts amounts from a buy or sell log line. The mint is
// the second account key; the fee payer is the trader.
func (p *Parser) parseTrade(tx *solana.Transaction, logs []string, ev *Event) *Event {
	matched := false
	for _, line := range logs {
		if !strings.Contains(line, "Bought") && !strings.Contains(line, "Sold") {
			continue
		}
		m := p.tradePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		tokens, err1 := strconv.ParseFloat(m[1], 64)
		sol, err2 := strconv.ParseFloat(m[2], 64)
		fee, err3 := strconv.ParseFloat(m[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}

		ev.TokenAmount = tokens
		ev.SolAmount = sol
		ev.Fee = fee
		matched = true
		break
	}

	if !matched {
		ev.Kind = KindUnrecognized
		ev.Reason = "trade without amount log"
		return ev
	}
	if ev.SolAmount <= 0 {
		ev.Kind = KindUnrecognized
		ev.Reason = "trade with zero sol amount"
		return ev
	}

	if tx.Message == nil || len(tx.Message.AccountKeys) < 2 {
		ev.Kind = KindUnrecognized
		ev.Reason = "trade without account keys"
		return ev
	}

	mint := tx.Message.AccountKeys[1]
	if !validAddress(mint) {
		ev.Kind = KindUnrecognized
		ev.Reason = "invalid mint address: " + mint
		return ev
	}

	ev.Mint = mint
	ev.Trader = feePayer(tx)
	return ev
}

func containsMarker(logs []string, marker string) bool {
	for _, line := range logs {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func feePayer(tx *solana.Transaction) string {
	if tx.Message != nil && len(tx.Message.AccountKeys) > 0 {
		return tx.Message.AccountKeys[0]
	}
	return ""
}

// validAddress reports whether s decodes to a 32-byte public key.
func validAddress(s string) bool {
	decoded, err := base58.Decode(s)
	return err == nil && len(decoded) == 32
}
