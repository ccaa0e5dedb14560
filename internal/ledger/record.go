package ledger

import (
	"encoding/json"
	"errors"
)

// Ref models the ledger's two reference shapes: a bare handle string, or an
// object carrying a handle plus optional custom fields. Every consumer goes
// through the unwrap methods instead of inspecting raw JSON.
type Ref struct {
	// IsString is true when the reference arrived as a bare string.
	IsString bool
	Value    string

	Handle       string
	MerchantCode string
	Custom       map[string]any

	raw json.RawMessage
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	r.raw = append(json.RawMessage(nil), b...)

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Ref{IsString: true, Value: s, raw: r.raw}
		return nil
	}

	var obj struct {
		Handle       string         `json:"handle"`
		MerchantCode string         `json:"merchantCode"`
		Custom       map[string]any `json:"custom"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return errors.New("ledger: reference is neither string nor object")
	}
	r.IsString = false
	r.Value = ""
	r.Handle = obj.Handle
	r.MerchantCode = obj.MerchantCode
	r.Custom = obj.Custom
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	if r.IsString {
		return json.Marshal(r.Value)
	}
	return json.Marshal(map[string]any{"handle": r.Handle})
}

// UnwrapHandle returns the referenced handle: the string itself, or the
// object's handle field.
func (r *Ref) UnwrapHandle() string {
	if r == nil {
		return ""
	}
	if r.IsString {
		return r.Value
	}
	return r.Handle
}

// CustomString returns a string-valued custom field, tolerating a nil ref.
func (r *Ref) CustomString(key string) string {
	if r == nil || r.Custom == nil {
		return ""
	}
	if s, ok := r.Custom[key].(string); ok {
		return s
	}
	return ""
}

// AnchorCustom carries the anchor's free-form fields the bridge cares about.
// Unknown custom fields are not modeled here; AnchorData keeps the raw bytes
// so they survive re-marshalling.
type AnchorCustom struct {
	PaymentReferenceNumber string         `json:"paymentReferenceNumber,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
}

// MerchantTxID returns custom.metadata.merchantTxId when present.
func (c *AnchorCustom) MerchantTxID() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	if s, ok := c.Metadata["merchantTxId"].(string); ok {
		return s
	}
	return ""
}

// AnchorData is the data section of a ledger anchor record. Decoding keeps
// the raw bytes: proofs are signed over the data section exactly as the
// ledger stores it, so re-marshalling must not drop fields the typed model
// does not enumerate.
type AnchorData struct {
	Handle string        `json:"handle,omitempty"`
	Schema string        `json:"schema,omitempty"`
	Amount *float64      `json:"amount,omitempty"`
	Custom *AnchorCustom `json:"custom,omitempty"`
	Target *Ref          `json:"target,omitempty"`
	Symbol *Ref          `json:"symbol,omitempty"`

	raw json.RawMessage
}

func (d *AnchorData) UnmarshalJSON(b []byte) error {
	type plain AnchorData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = AnchorData(p)
	d.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (d AnchorData) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	type plain AnchorData
	return json.Marshal(plain(d))
}

// AnchorRecord is a signed anchor envelope as returned by the ledger or
// embedded in a webhook event.
type AnchorRecord struct {
	Data AnchorData `json:"data"`
	Hash string     `json:"hash,omitempty"`
	Meta Meta       `json:"meta,omitempty"`
}

// Claim is a single transfer claim on an intent.
type Claim struct {
	Action string   `json:"action,omitempty"`
	Source *Ref     `json:"source,omitempty"`
	Target *Ref     `json:"target,omitempty"`
	Symbol *Ref     `json:"symbol,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// Access grants record operations to a signer.
type Access struct {
	Action string  `json:"action"`
	Signer *Signer `json:"signer,omitempty"`
}

// Signer identifies a signing key on an access rule or proof.
type Signer struct {
	Public string `json:"public"`
}

// IntentData is the data section of a ledger intent record. Some ledger
// responses nest the record one level deeper ({data:{data:{handle}}}); the
// Nested field captures that shape so handle extraction stays exhaustive.
// Decoded data keeps its raw bytes for the same signing reason as AnchorData.
type IntentData struct {
	Handle string         `json:"handle,omitempty"`
	Schema string         `json:"schema,omitempty"`
	Claims []Claim        `json:"claims,omitempty"`
	Access []Access       `json:"access,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
	Nested *IntentData    `json:"data,omitempty"`

	raw json.RawMessage
}

func (d *IntentData) UnmarshalJSON(b []byte) error {
	type plain IntentData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = IntentData(p)
	d.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (d IntentData) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	type plain IntentData
	return json.Marshal(plain(d))
}

// IntentRecord is a signed intent envelope.
type IntentRecord struct {
	Data IntentData `json:"data"`
	Hash string     `json:"hash,omitempty"`
	Meta Meta       `json:"meta,omitempty"`
}

// CanonicalHandle resolves the intent handle across the response nesting
// depths the ledger is known to produce. Empty when none carries one.
func (r *IntentRecord) CanonicalHandle() string {
	if r == nil {
		return ""
	}
	if r.Data.Handle != "" {
		return r.Data.Handle
	}
	if r.Data.Nested != nil && r.Data.Nested.Handle != "" {
		return r.Data.Nested.Handle
	}
	return ""
}

// Proof is a signed attestation attached to a record.
type Proof struct {
	Method string         `json:"method,omitempty"`
	Public string         `json:"public,omitempty"`
	Digest string         `json:"digest,omitempty"`
	Result string         `json:"result,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
}

// Status returns the proof's custom status field, if any.
func (p *Proof) Status() string {
	if p == nil || p.Custom == nil {
		return ""
	}
	if s, ok := p.Custom["status"].(string); ok {
		return s
	}
	return ""
}

// Meta is the meta section shared by anchor and intent envelopes.
type Meta struct {
	Labels []string `json:"labels,omitempty"`
	Proofs []Proof  `json:"proofs,omitempty"`
	Status string   `json:"status,omitempty"`
	Moment string   `json:"moment,omitempty"`
}

// HasProofFrom reports whether the proof set contains an entry from the given
// public key with the given status.
func (m *Meta) HasProofFrom(public, status string) bool {
	for i := range m.Proofs {
		p := &m.Proofs[i]
		if p.Public == public && p.Status() == status {
			return true
		}
	}
	return false
}
