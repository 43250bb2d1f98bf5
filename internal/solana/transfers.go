package solana

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ParsedTransfer is a token movement extracted from spl-token instructions.
// From/To are owner wallets; either is empty for mints and burns.
type ParsedTransfer struct {
	SourceAccount      string
	DestinationAccount string
	From               string
	To                 string
	Mint               string
	Amount             uint64
	Decimals           uint8
}

type tokenAccountMeta struct {
	mint     string
	owner    string
	decimals uint8
}

// splTokenInfo covers the info fields of the instruction types we read.
type splTokenInfo struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Account     string         `json:"account"`
	Authority   string         `json:"authority"`
	Mint        string         `json:"mint"`
	Amount      string         `json:"amount"`
	TokenAmount *UITokenAmount `json:"tokenAmount"`
}

// ParseTokenTransfers walks top-level and inner spl-token instructions of a
// jsonParsed transaction and resolves token accounts to owners and mints using
// the pre/post token balances. Failed transactions yield no transfers.
func ParseTokenTransfers(tx *Transaction) ([]ParsedTransfer, error) {
	if tx == nil || tx.Meta == nil || tx.Message == nil || tx.Meta.Err != nil {
		return nil, nil
	}

	accounts := indexTokenAccounts(tx)

	instructions := append([]Instruction{}, tx.Message.Instructions...)
	for _, inner := range tx.Meta.InnerInstructions {
		instructions = append(instructions, inner.Instructions...)
	}

	var transfers []ParsedTransfer
	for _, ix := range instructions {
		if ix.Parsed == nil || !isTokenProgram(ix) {
			continue
		}
		t, ok, err := parseTokenInstruction(ix.Parsed, accounts)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.Signature, err)
		}
		if ok {
			transfers = append(transfers, t)
		}
	}
	return transfers, nil
}

func isTokenProgram(ix Instruction) bool {
	return ix.Program == "spl-token" || ix.ProgramID == TokenProgramID
}

func indexTokenAccounts(tx *Transaction) map[string]tokenAccountMeta {
	accounts := make(map[string]tokenAccountMeta)
	add := func(balances []TokenBalance) {
		for _, b := range balances {
			if b.AccountIndex < 0 || b.AccountIndex >= len(tx.Message.AccountKeys) {
				continue
			}
			accounts[tx.Message.AccountKeys[b.AccountIndex]] = tokenAccountMeta{
				mint:     b.Mint,
				owner:    b.Owner,
				decimals: b.UITokenAmount.Decimals,
			}
		}
	}
	add(tx.Meta.PreTokenBalances)
	add(tx.Meta.PostTokenBalances)
	return accounts
}

func parseTokenInstruction(p *ParsedInstruction, accounts map[string]tokenAccountMeta) (ParsedTransfer, bool, error) {
	switch p.Type {
	case "transfer", "transferChecked", "mintTo", "mintToChecked", "burn", "burnChecked":
	default:
		return ParsedTransfer{}, false, nil
	}

	var info splTokenInfo
	if err := json.Unmarshal(p.Info, &info); err != nil {
		return ParsedTransfer{}, false, fmt.Errorf("decode %s info: %w", p.Type, err)
	}

	amount, decimals, err := info.quantity()
	if err != nil {
		return ParsedTransfer{}, false, fmt.Errorf("%s amount: %w", p.Type, err)
	}

	t := ParsedTransfer{Amount: amount, Mint: info.Mint, Decimals: decimals}

	switch p.Type {
	case "transfer", "transferChecked":
		t.SourceAccount = info.Source
		t.DestinationAccount = info.Destination
	case "mintTo", "mintToChecked":
		t.DestinationAccount = info.Account
	case "burn", "burnChecked":
		t.SourceAccount = info.Account
	}

	if src, ok := accounts[t.SourceAccount]; ok && t.SourceAccount != "" {
		t.From = src.owner
		t.fillMint(src)
	} else if t.SourceAccount != "" {
		t.From = info.Authority
	}
	if dst, ok := accounts[t.DestinationAccount]; ok && t.DestinationAccount != "" {
		t.To = dst.owner
		t.fillMint(dst)
	}

	if t.Mint == "" {
		// Without a mint the transfer cannot be attributed to a market.
		return ParsedTransfer{}, false, nil
	}
	return t, true, nil
}

func (t *ParsedTransfer) fillMint(meta tokenAccountMeta) {
	if t.Mint == "" {
		t.Mint = meta.mint
	}
	if t.Decimals == 0 {
		t.Decimals = meta.decimals
	}
}

func (i splTokenInfo) quantity() (uint64, uint8, error) {
	if i.TokenAmount != nil {
		v, err := strconv.ParseUint(i.TokenAmount.Amount, 10, 64)
		return v, i.TokenAmount.Decimals, err
	}
	v, err := strconv.ParseUint(i.Amount, 10, 64)
	return v, 0, err
}
