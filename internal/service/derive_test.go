package service

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hector-minka/collections-bridge/internal/ledger"
)

func anchorFromJSON(t *testing.T, payload string) *ledger.AnchorRecord {
	t.Helper()
	var record ledger.AnchorRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		t.Fatalf("unmarshal anchor: %v", err)
	}
	return &record
}

const scenarioAnchorJSON = `{
	"data": {
		"handle": "QR-123-abc",
		"schema": "qr-code",
		"amount": 10000,
		"custom": {
			"paymentReferenceNumber": "FACT-2024-001246",
			"metadata": {"merchantTxId": "CO.COM.SVB.TRXID123"}
		},
		"target": {"handle": "merchant-acct", "custom": {"merchantCode": "0076570881"}},
		"symbol": "cop"
	}
}`

func TestDeriveIdentifiersFullAnchor(t *testing.T) {
	ids, err := DeriveIdentifiers(anchorFromJSON(t, scenarioAnchorJSON))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if ids.MerchantCode != "0076570881" {
		t.Fatalf("unexpected merchantCode: %s", ids.MerchantCode)
	}
	if ids.PaymentReferenceNumber != "FACT-2024-001246" {
		t.Fatalf("unexpected paymentReferenceNumber: %s", ids.PaymentReferenceNumber)
	}
	if ids.IntentHandle != "0076570881:FACT-2024-001246" {
		t.Fatalf("unexpected intentHandle: %s", ids.IntentHandle)
	}
	if ids.MerchantTxID != "CO.COM.SVB.TRXID123" || ids.MerchantTxIDFallback {
		t.Fatalf("unexpected merchantTxId: %s fallback=%v", ids.MerchantTxID, ids.MerchantTxIDFallback)
	}
	if ids.ClaimTargetHandle != "merchant-acct" {
		t.Fatalf("unexpected claim target: %s", ids.ClaimTargetHandle)
	}
	if ids.SymbolHandle != "cop" {
		t.Fatalf("unexpected symbol: %s", ids.SymbolHandle)
	}
	if ids.Amount != 10000 {
		t.Fatalf("unexpected amount: %v", ids.Amount)
	}
}

func TestDeriveIdentifiersMerchantTxIDFallback(t *testing.T) {
	payload := `{
		"data": {
			"handle": "QR-123-abc",
			"amount": 10000,
			"custom": {"paymentReferenceNumber": "FACT-2024-001246"},
			"target": {"handle": "m", "custom": {"merchantCode": "0076570881"}},
			"symbol": "cop"
		}
	}`
	ids, err := DeriveIdentifiers(anchorFromJSON(t, payload))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !ids.MerchantTxIDFallback {
		t.Fatal("expected fallback flag")
	}
	if ids.MerchantTxID != ids.IntentHandle {
		t.Fatalf("fallback merchantTxId must equal intentHandle, got %s", ids.MerchantTxID)
	}
}

func TestDeriveIdentifiersMerchantCodeChain(t *testing.T) {
	cases := []struct {
		name   string
		target string
		want   string
	}{
		{"custom wins", `{"handle":"h","merchantCode":"top","custom":{"merchantCode":"nested"}}`, "nested"},
		{"top-level field", `{"handle":"h","merchantCode":"top"}`, "top"},
		{"bare string", `"bare-code"`, "bare-code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{
				"data": {
					"handle": "QR-1",
					"amount": 1,
					"custom": {"paymentReferenceNumber": "REF-1"},
					"target": ` + tc.target + `,
					"symbol": "cop"
				}
			}`
			ids, err := DeriveIdentifiers(anchorFromJSON(t, payload))
			if err != nil {
				t.Fatalf("derive: %v", err)
			}
			if ids.MerchantCode != tc.want {
				t.Fatalf("unexpected merchantCode: %s", ids.MerchantCode)
			}
		})
	}
}

func TestDeriveIdentifiersMissingFields(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{
			"no merchant code",
			`{"data":{"handle":"h","amount":1,"custom":{"paymentReferenceNumber":"R"},"target":{"handle":"m"},"symbol":"cop"}}`,
			"merchantCode",
		},
		{
			"no payment reference",
			`{"data":{"handle":"h","amount":1,"custom":{},"target":"0076570881","symbol":"cop"}}`,
			"custom.paymentReferenceNumber",
		},
		{
			"no symbol",
			`{"data":{"handle":"h","amount":1,"custom":{"paymentReferenceNumber":"R"},"target":"0076570881"}}`,
			"symbol",
		},
		{
			"no amount",
			`{"data":{"handle":"h","custom":{"paymentReferenceNumber":"R"},"target":"0076570881","symbol":"cop"}}`,
			"amount",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DeriveIdentifiers(anchorFromJSON(t, tc.payload))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, err)
			}
		})
	}
}

func TestDeriveIdentifiersNilAnchor(t *testing.T) {
	if _, err := DeriveIdentifiers(nil); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
