package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

func TestGetMintInfoParsesAuthorities(t *testing.T) {
	mintAuthority := "MintAuthority11111111111111111111111111111"
	mockTransport := &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			respObj := RPCResponse{
				JSONRPC: "2.0",
				ID:      1,
				Result: mustMarshal(map[string]interface{}{
					"value": map[string]interface{}{
						"data": map[string]interface{}{
							"parsed": map[string]interface{}{
								"info": map[string]interface{}{
									"mintAuthority":   mintAuthority,
									"freezeAuthority": nil,
									"supply":          "1000000000",
									"decimals":        9,
								},
							},
						},
					},
				}),
			}
			b, _ := json.Marshal(respObj)
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBuffer(b))}, nil
		},
	}

	client := &RPCClient{primaryURL: "http://mock", httpClient: &http.Client{Transport: mockTransport}}

	info, err := client.GetMintInfo(context.Background(), "Mint1111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetMintInfo failed: %v", err)
	}
	if info.MintAuthority == nil || *info.MintAuthority != mintAuthority {
		t.Errorf("expected mint authority %s, got %v", mintAuthority, info.MintAuthority)
	}
	if info.FreezeAuthority != nil {
		t.Errorf("expected nil freeze authority, got %v", *info.FreezeAuthority)
	}
	if info.Supply != "1000000000" {
		t.Errorf("expected supply 1000000000, got %s", info.Supply)
	}
}

func TestGetMintInfoNotFound(t *testing.T) {
	mockTransport := &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			respObj := RPCResponse{JSONRPC: "2.0", ID: 1, Result: mustMarshal(map[string]interface{}{"value": nil})}
			b, _ := json.Marshal(respObj)
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBuffer(b))}, nil
		},
	}
	client := &RPCClient{primaryURL: "http://mock", httpClient: &http.Client{Transport: mockTransport}}

	_, err := client.GetMintInfo(context.Background(), "NoSuchMint")
	if err == nil {
		t.Fatal("expected error for missing mint account")
	}
}

func TestGetMintInfoIsCachedAcrossCalls(t *testing.T) {
	calls := 0
	mockTransport := &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			calls++
			respObj := RPCResponse{
				JSONRPC: "2.0",
				ID:      1,
				Result: mustMarshal(map[string]interface{}{
					"value": map[string]interface{}{
						"data": map[string]interface{}{
							"parsed": map[string]interface{}{
								"info": map[string]interface{}{
									"mintAuthority": nil, "freezeAuthority": nil, "supply": "1", "decimals": 9,
								},
							},
						},
					},
				}),
			}
			b, _ := json.Marshal(respObj)
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBuffer(b))}, nil
		},
	}

	client := NewRPCClient("http://mock", "", "")
	client.httpClient.Transport = mockTransport

	mint := "Mint5555555555555555555555555555555555555"
	if _, err := client.GetMintInfo(context.Background(), mint); err != nil {
		t.Fatalf("GetMintInfo failed: %v", err)
	}
	if _, err := client.GetMintInfo(context.Background(), mint); err != nil {
		t.Fatalf("GetMintInfo failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected a single upstream call due to caching, got %d", calls)
	}
}

// MockRoundTripper captures requests and returns a canned response.
type MockRoundTripper struct {
	Func func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Func(req)
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
