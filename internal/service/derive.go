package service

import (
	"github.com/hector-minka/collections-bridge/internal/ledger"
)

// DerivedIdentifiers is everything the reconcilers extract from an anchor
// document. IntentHandle is the primary idempotency key for ledger-side
// linking; its composition must stay deterministic and order-stable.
type DerivedIdentifiers struct {
	MerchantCode           string
	PaymentReferenceNumber string
	IntentHandle           string
	MerchantTxID           string
	// MerchantTxIDFallback is true when the anchor metadata carried no
	// merchantTxId and the intent handle was used instead.
	MerchantTxIDFallback bool
	ClaimTargetHandle    string
	SymbolHandle         string
	Amount               float64
}

// DeriveIdentifiers extracts the cross-system identifiers from an anchor
// record. Pure: any missing required field fails with a ValidationError
// before the caller touches the store or the ledger.
func DeriveIdentifiers(anchor *ledger.AnchorRecord) (*DerivedIdentifiers, error) {
	if anchor == nil {
		return nil, missingField("anchor")
	}
	data := &anchor.Data

	merchantCode := merchantCodeFromTarget(data.Target)
	if merchantCode == "" {
		return nil, missingField("merchantCode")
	}

	var paymentRef string
	if data.Custom != nil {
		paymentRef = data.Custom.PaymentReferenceNumber
	}
	if paymentRef == "" {
		return nil, missingField("custom.paymentReferenceNumber")
	}

	intentHandle := merchantCode + ":" + paymentRef

	merchantTxID := ""
	if data.Custom != nil {
		merchantTxID = data.Custom.MerchantTxID()
	}
	fallback := false
	if merchantTxID == "" {
		merchantTxID = intentHandle
		fallback = true
	}

	claimTarget := data.Target.UnwrapHandle()
	if claimTarget == "" {
		return nil, missingField("target")
	}

	symbol := data.Symbol.UnwrapHandle()
	if symbol == "" {
		return nil, missingField("symbol")
	}

	if data.Amount == nil {
		return nil, missingField("amount")
	}

	return &DerivedIdentifiers{
		MerchantCode:           merchantCode,
		PaymentReferenceNumber: paymentRef,
		IntentHandle:           intentHandle,
		MerchantTxID:           merchantTxID,
		MerchantTxIDFallback:   fallback,
		ClaimTargetHandle:      claimTarget,
		SymbolHandle:           symbol,
		Amount:                 *data.Amount,
	}, nil
}

// merchantCodeFromTarget resolves the merchant code across the target's
// shapes: target.custom.merchantCode, then target.merchantCode, then the
// target itself when it is a bare string.
func merchantCodeFromTarget(target *ledger.Ref) string {
	if target == nil {
		return ""
	}
	if code := target.CustomString("merchantCode"); code != "" {
		return code
	}
	if !target.IsString && target.MerchantCode != "" {
		return target.MerchantCode
	}
	if target.IsString {
		return target.Value
	}
	return ""
}
