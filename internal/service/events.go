package service

import (
	"encoding/json"

	"github.com/hector-minka/collections-bridge/internal/domain"
	"github.com/hector-minka/collections-bridge/internal/ledger"
)

// AnchorCreatedEvent is the anchor-arrival webhook payload. The anchor stays
// raw so the stored snapshot keeps fields the typed record does not model.
type AnchorCreatedEvent struct {
	Data *AnchorCreatedEventData `json:"data"`
	Hash string                  `json:"hash,omitempty"`
}

type AnchorCreatedEventData struct {
	Handle string          `json:"handle,omitempty"`
	Signal string          `json:"signal,omitempty"`
	Anchor json.RawMessage `json:"anchor,omitempty"`
}

// HasAnchor reports whether the event carries an anchor payload at all.
func (e *AnchorCreatedEvent) HasAnchor() bool {
	return e != nil && e.Data != nil && len(e.Data.Anchor) > 0 && string(e.Data.Anchor) != "null"
}

// AnchorRecord decodes the embedded anchor into its typed shape.
func (e *AnchorCreatedEvent) AnchorRecord() (*ledger.AnchorRecord, error) {
	var record ledger.AnchorRecord
	if err := json.Unmarshal(e.Data.Anchor, &record); err != nil {
		return nil, &ValidationError{Field: "data.anchor", Msg: "malformed anchor payload"}
	}
	return &record, nil
}

// AnchorSnapshot decodes the embedded anchor as an opaque document for audit
// storage.
func (e *AnchorCreatedEvent) AnchorSnapshot() domain.Document {
	var doc domain.Document
	if err := json.Unmarshal(e.Data.Anchor, &doc); err != nil {
		return nil
	}
	return doc
}

// IntentUpdatedEvent is the fulfillment-confirmation webhook payload sent by
// the upstream RTP network when an intent settles.
type IntentUpdatedEvent struct {
	Data *IntentUpdatedEventData `json:"data"`
	Hash string                  `json:"hash,omitempty"`
}

type IntentUpdatedEventData struct {
	Handle string               `json:"handle,omitempty"`
	Signal string               `json:"signal,omitempty"`
	Intent *ledger.IntentRecord `json:"intent,omitempty"`
}

// Status returns the upstream intent's settlement status, empty when absent.
func (e *IntentUpdatedEvent) Status() string {
	if e == nil || e.Data == nil || e.Data.Intent == nil {
		return ""
	}
	return e.Data.Intent.Meta.Status
}

// UpstreamIntentHandle is the RTP-side intent handle carried by the event.
func (e *IntentUpdatedEvent) UpstreamIntentHandle() string {
	if e == nil || e.Data == nil || e.Data.Intent == nil {
		return ""
	}
	return e.Data.Intent.CanonicalHandle()
}

// FirstClaimTarget returns the first claim's target reference, nil when the
// event carries no claims.
func (e *IntentUpdatedEvent) FirstClaimTarget() *ledger.Ref {
	if e == nil || e.Data == nil || e.Data.Intent == nil {
		return nil
	}
	claims := e.Data.Intent.Data.Claims
	if len(claims) == 0 {
		return nil
	}
	return claims[0].Target
}

// RequestMeta is boundary metadata attached to a fulfillment event, used only
// for logging.
type RequestMeta struct {
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
	IP     string `json:"ip,omitempty"`
}
