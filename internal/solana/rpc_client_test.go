package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every JSON-RPC request with handler(method, params).
func rpcServer(t *testing.T, handler func(method string, params []interface{}) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64        `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := rpcServer(t, func(method string, params []interface{}) (interface{}, *RPCError) {
		assert.Equal(t, "getTransaction", method)
		opts := params[1].(map[string]interface{})
		assert.Equal(t, "jsonParsed", opts["encoding"])
		assert.EqualValues(t, 0, opts["maxSupportedTransactionVersion"])

		return map[string]interface{}{
			"slot":      123456,
			"blockTime": 1700000000,
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: Hello"},
				"preTokenBalances": []interface{}{
					map[string]interface{}{
						"accountIndex": 1,
						"mint":         "MintA",
						"owner":        "OwnerA",
						"uiTokenAmount": map[string]interface{}{
							"amount": "100", "decimals": 6, "uiAmountString": "0.0001",
						},
					},
				},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []interface{}{
						map[string]interface{}{"pubkey": "Payer", "signer": true},
						map[string]interface{}{"pubkey": "TokenAcct", "signer": false},
					},
					"instructions": []interface{}{
						map[string]interface{}{
							"program":   "spl-token",
							"programId": TokenProgramID,
							"parsed": map[string]interface{}{
								"type": "transfer",
								"info": map[string]interface{}{"amount": "5"},
							},
						},
						map[string]interface{}{
							"programId": "ComputeBudget111111111111111111111111111111",
							"data":      "3DTZbgwsozUF",
						},
					},
				},
			},
		}, nil
	})

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "sig1")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, int64(123456), tx.Slot)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
	assert.Equal(t, "sig1", tx.Signature)
	assert.Equal(t, []string{"Payer", "TokenAcct"}, tx.Message.AccountKeys)
	require.Len(t, tx.Message.Instructions, 2)
	require.NotNil(t, tx.Message.Instructions[0].Parsed)
	assert.Equal(t, "transfer", tx.Message.Instructions[0].Parsed.Type)
	assert.Nil(t, tx.Message.Instructions[1].Parsed)
	require.Len(t, tx.Meta.PreTokenBalances, 1)
	assert.Equal(t, uint8(6), tx.Meta.PreTokenBalances[0].UITokenAmount.Decimals)
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) (interface{}, *RPCError) {
		return nil, nil
	})

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	var gotOpts map[string]interface{}
	server := rpcServer(t, func(method string, params []interface{}) (interface{}, *RPCError) {
		assert.Equal(t, "getSignaturesForAddress", method)
		assert.Equal(t, "Mint1", params[0])
		gotOpts = params[1].(map[string]interface{})
		return []interface{}{
			map[string]interface{}{"signature": "sig2", "slot": 20, "blockTime": 1700000020, "err": nil},
			map[string]interface{}{"signature": "sig1", "slot": 10, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		}, nil
	})

	sigs, err := NewHTTPClient(server.URL).GetSignaturesForAddress(context.Background(), "Mint1", &SignaturesOpts{
		Before: "sig9",
		Until:  "sig0",
		Limit:  1000,
	})
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	assert.Equal(t, "sig9", gotOpts["before"])
	assert.Equal(t, "sig0", gotOpts["until"])
	assert.EqualValues(t, 1000, gotOpts["limit"])

	assert.Equal(t, "sig2", sigs[0].Signature)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000020), *sigs[0].BlockTime)
	assert.Nil(t, sigs[0].Err)
	assert.NotNil(t, sigs[1].Err)
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := rpcServer(t, func(method string, params []interface{}) (interface{}, *RPCError) {
		switch params[0] {
		case "Exists":
			return map[string]interface{}{
				"value": map[string]interface{}{
					"lamports": 1461600,
					"owner":    TokenProgramID,
					"data":     []string{"AQID", "base64"},
				},
			}, nil
		default:
			return map[string]interface{}{"value": nil}, nil
		}
	})
	client := NewHTTPClient(server.URL)

	info, err := client.GetAccountInfo(context.Background(), "Exists")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)
	assert.Equal(t, TokenProgramID, info.Owner)

	info, err = client.GetAccountInfo(context.Background(), "Missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestHTTPClient_GetTokenAccountBalance(t *testing.T) {
	server := rpcServer(t, func(method string, params []interface{}) (interface{}, *RPCError) {
		assert.Equal(t, "getTokenAccountBalance", method)
		if params[0] == "Missing" {
			return nil, &RPCError{Code: rpcCodeInvalidParams, Message: "Invalid param: could not find account"}
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   map[string]interface{}{"amount": "99500000", "decimals": 6, "uiAmountString": "99.5"},
		}, nil
	})
	client := NewHTTPClient(server.URL)

	bal, err := client.GetTokenAccountBalance(context.Background(), "Treasury")
	require.NoError(t, err)
	require.NotNil(t, bal)
	assert.Equal(t, uint64(99500000), bal.Amount)
	assert.Equal(t, uint8(6), bal.Decimals)
	assert.Equal(t, "99.5", bal.UIAmountString)

	bal, err = client.GetTokenAccountBalance(context.Background(), "Missing")
	require.NoError(t, err)
	assert.Nil(t, bal)
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -32600, Message: "Invalid request"}
	})

	_, err := NewHTTPClient(server.URL).GetSignaturesForAddress(context.Background(), "x", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32600, rpcErr.Code)
}

func TestHTTPClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "sig")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestHTTPClient_HTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "sig")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) (interface{}, *RPCError) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(server.URL).GetTransaction(ctx, "sig")
	assert.ErrorIs(t, err, context.Canceled)
}
