package solana

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedIx(t *testing.T, typ string, info map[string]interface{}) Instruction {
	t.Helper()
	raw, err := json.Marshal(info)
	require.NoError(t, err)
	return Instruction{
		Program:   "spl-token",
		ProgramID: TokenProgramID,
		Parsed:    &ParsedInstruction{Type: typ, Info: raw},
	}
}

func balance(index int, mint, owner string, decimals uint8) TokenBalance {
	return TokenBalance{
		AccountIndex:  index,
		Mint:          mint,
		Owner:         owner,
		UITokenAmount: UITokenAmount{Decimals: decimals},
	}
}

func TestParseTokenTransfers(t *testing.T) {
	tx := &Transaction{
		Signature: "sig1",
		Message: &TransactionMessage{
			AccountKeys: []string{"Payer", "SrcAcct", "DstAcct", "NewAcct"},
			Instructions: []Instruction{
				parsedIx(t, "transfer", map[string]interface{}{
					"source": "SrcAcct", "destination": "DstAcct", "authority": "Alice", "amount": "2500000",
				}),
				{ProgramID: "ComputeBudget111111111111111111111111111111"},
			},
		},
		Meta: &TransactionMeta{
			PreTokenBalances: []TokenBalance{
				balance(1, "MintYes", "Alice", 6),
				balance(2, "MintYes", "Bob", 6),
			},
			PostTokenBalances: []TokenBalance{
				balance(1, "MintYes", "Alice", 6),
				balance(2, "MintYes", "Bob", 6),
				balance(3, "MintNo", "Carol", 9),
			},
			InnerInstructions: []InnerInstructions{
				{Index: 0, Instructions: []Instruction{
					parsedIx(t, "mintToChecked", map[string]interface{}{
						"account": "NewAcct", "mint": "MintNo",
						"tokenAmount": map[string]interface{}{"amount": "7", "decimals": 9},
					}),
				}},
			},
		},
	}

	transfers, err := ParseTokenTransfers(tx)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	assert.Equal(t, ParsedTransfer{
		SourceAccount:      "SrcAcct",
		DestinationAccount: "DstAcct",
		From:               "Alice",
		To:                 "Bob",
		Mint:               "MintYes",
		Amount:             2500000,
		Decimals:           6,
	}, transfers[0])

	assert.Equal(t, "", transfers[1].From)
	assert.Equal(t, "Carol", transfers[1].To)
	assert.Equal(t, "MintNo", transfers[1].Mint)
	assert.Equal(t, uint64(7), transfers[1].Amount)
	assert.Equal(t, uint8(9), transfers[1].Decimals)
}

func TestParseTokenTransfers_FailedTransaction(t *testing.T) {
	tx := &Transaction{
		Message: &TransactionMessage{Instructions: []Instruction{
			parsedIx(t, "transfer", map[string]interface{}{"source": "a", "destination": "b", "amount": "1"}),
		}},
		Meta: &TransactionMeta{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
	}
	transfers, err := ParseTokenTransfers(tx)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestParseTokenTransfers_UnknownMintSkipped(t *testing.T) {
	tx := &Transaction{
		Message: &TransactionMessage{
			AccountKeys: []string{"x"},
			Instructions: []Instruction{
				parsedIx(t, "transfer", map[string]interface{}{"source": "a", "destination": "b", "authority": "w", "amount": "1"}),
				parsedIx(t, "approve", map[string]interface{}{"source": "a", "delegate": "d", "amount": "1"}),
			},
		},
		Meta: &TransactionMeta{},
	}
	transfers, err := ParseTokenTransfers(tx)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestParseTokenTransfers_BadAmount(t *testing.T) {
	tx := &Transaction{
		Signature: "sigBad",
		Message: &TransactionMessage{Instructions: []Instruction{
			parsedIx(t, "burn", map[string]interface{}{"account": "a", "mint": "m", "amount": "-1"}),
		}},
		Meta: &TransactionMeta{},
	}
	_, err := ParseTokenTransfers(tx)
	assert.ErrorContains(t, err, "sigBad")
}

func TestInstruction_UnmarshalJSON(t *testing.T) {
	var ixs []Instruction
	require.NoError(t, json.Unmarshal([]byte(`[
		{"program":"spl-token","programId":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","parsed":{"type":"transfer","info":{"amount":"1"}}},
		{"program":"spl-memo","programId":"MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr","parsed":"hello"},
		{"programId":"Other111","accounts":[],"data":"3Bxs"}
	]`), &ixs))

	require.Len(t, ixs, 3)
	require.NotNil(t, ixs[0].Parsed)
	assert.Equal(t, "transfer", ixs[0].Parsed.Type)
	assert.Nil(t, ixs[1].Parsed)
	assert.Nil(t, ixs[2].Parsed)
	assert.Equal(t, "Other111", ixs[2].ProgramID)
}
