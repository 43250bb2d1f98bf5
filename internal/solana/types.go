package solana

import (
	"encoding/json"
	"fmt"
)

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature (exclusive)
	Limit  int    // Maximum number of signatures to return
}

// Transaction is a confirmed transaction fetched with jsonParsed encoding.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction status and token balance metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	InnerInstructions []InnerInstructions
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []Instruction
}

// TokenBalance is a pre/post token balance entry of a transaction.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	ProgramID     string        `json:"programId"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is the node's rendering of a token quantity.
type UITokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// InnerInstructions groups CPI instructions by top-level instruction index.
type InnerInstructions struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction is a jsonParsed instruction. Parsed is nil for programs the
// node cannot decode.
type Instruction struct {
	Program   string             `json:"program"`
	ProgramID string             `json:"programId"`
	Parsed    *ParsedInstruction `json:"-"`
}

// ParsedInstruction holds the decoded type and raw info object.
type ParsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// UnmarshalJSON accepts both the decoded object form and the raw base58 string
// form that the node emits for unknown programs.
func (i *Instruction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Program   string          `json:"program"`
		ProgramID string          `json:"programId"`
		Parsed    json.RawMessage `json:"parsed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Program = raw.Program
	i.ProgramID = raw.ProgramID
	i.Parsed = nil

	if len(raw.Parsed) == 0 || raw.Parsed[0] != '{' {
		return nil
	}
	var parsed ParsedInstruction
	if err := json.Unmarshal(raw.Parsed, &parsed); err != nil {
		return fmt.Errorf("decode parsed instruction: %w", err)
	}
	i.Parsed = &parsed
	return nil
}

// accountKey decodes both "json" (plain string) and "jsonParsed" (object) account keys.
type accountKey string

func (k *accountKey) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = accountKey(s)
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*k = accountKey(obj.Pubkey)
	return nil
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded from base64
	Executable bool
	RentEpoch  uint64
}

// TokenAccountBalance is the result of getTokenAccountBalance.
type TokenAccountBalance struct {
	Amount         uint64
	Decimals       uint8
	UIAmountString string
}
