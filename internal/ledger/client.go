package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the capability set the reconcilers require from the remote
// ledger. Every mutating call performs a read-modify-sign-send sequence
// internally; a concurrent change to the remote record surfaces as
// ErrConflict.
type Client interface {
	GetIntent(ctx context.Context, handle string) (*IntentRecord, error)
	GetAnchor(ctx context.Context, handle string) (*AnchorRecord, error)

	// FindAnchorByPaymentIDOrAlias resolves an anchor from a fulfillment
	// claim: idQR searches the anchor namespace by payment id, aliasValue is
	// treated as the anchor's own handle. idQR wins when both are given.
	// Returns (nil, nil) when no anchor matches.
	FindAnchorByPaymentIDOrAlias(ctx context.Context, idQR, aliasValue string) (*AnchorRecord, error)

	CreateIntent(ctx context.Context, spec CreateIntentSpec) (*IntentRecord, error)

	// AddAnchorLabelToIntent merges the label "anchorHandle:schema" into the
	// intent's label set. Re-adding an existing label is a no-op.
	AddAnchorLabelToIntent(ctx context.Context, intentHandle, anchorHandle, schema string) (*IntentRecord, error)

	SubmitProof(ctx context.Context, intentHandle string, detail map[string]any) error
	IntentHasCommittedProofFromUs(ctx context.Context, intentHandle string) (bool, error)

	AnchorHasProofFromUs(ctx context.Context, anchorHandle, status string) (bool, error)
	AddProofToAnchor(ctx context.Context, anchorHandle string, custom map[string]any) error

	// AnchorHandlesFromIntentLabels derives the set of anchor handles linked
	// to an intent from its labels, excluding the reserved merchant-txid tag.
	AnchorHandlesFromIntentLabels(intent *IntentRecord) []string
}

// CreateIntentSpec carries everything needed to mint a payment-collection
// intent: the derived handle, the anchor being linked, and the claim fields
// extracted from the anchor.
type CreateIntentSpec struct {
	Handle            string
	AnchorHandle      string
	AnchorSchema      string
	ClaimTargetHandle string
	SymbolHandle      string
	Amount            float64
	MerchantTxID      string
	Custom            map[string]any
}

const (
	intentSchema   = "payment-collection"
	bearerTokenTTL = 60 * time.Second
	statusCreated  = "CREATED"
)

// HTTPClient talks to the ledger's REST API with signed records and a
// short-lived EdDSA bearer token per request.
type HTTPClient struct {
	baseURL     string
	ledgerName  string
	claimSource string
	signer      *RecordSigner
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

type ClientOptions struct {
	Server                  string
	Ledger                  string
	Timeout                 time.Duration
	IntentClaimSourceHandle string
}

func NewHTTPClient(opts ClientOptions, signer *RecordSigner, logger *slog.Logger) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	claimSource := opts.IntentClaimSourceHandle
	if claimSource == "" {
		claimSource = "servibanca"
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(opts.Server, "/"),
		ledgerName:  opts.Ledger,
		claimSource: claimSource,
		signer:      signer,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		logger:      logger.With("component", "ledger_client"),
	}
}

func (c *HTTPClient) GetIntent(ctx context.Context, handle string) (*IntentRecord, error) {
	var record IntentRecord
	if err := c.do(ctx, http.MethodGet, "/intents/"+url.PathEscape(handle), nil, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *HTTPClient) GetAnchor(ctx context.Context, handle string) (*AnchorRecord, error) {
	var record AnchorRecord
	if err := c.do(ctx, http.MethodGet, "/anchors/"+url.PathEscape(handle), nil, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *HTTPClient) FindAnchorByPaymentIDOrAlias(ctx context.Context, idQR, aliasValue string) (*AnchorRecord, error) {
	if idQR != "" {
		anchor, err := c.findAnchorByPaymentID(ctx, idQR)
		if err != nil {
			return nil, err
		}
		if anchor != nil {
			return anchor, nil
		}
	}
	if aliasValue != "" {
		anchor, err := c.GetAnchor(ctx, aliasValue)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return anchor, nil
	}
	return nil, nil
}

func (c *HTTPClient) findAnchorByPaymentID(ctx context.Context, idQR string) (*AnchorRecord, error) {
	query := url.Values{"data.custom.idQR": {idQR}}
	var list struct {
		List  []AnchorRecord `json:"list"`
		Items []AnchorRecord `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/anchors", query, nil, &list); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	items := list.List
	if len(items) == 0 {
		items = list.Items
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (c *HTTPClient) CreateIntent(ctx context.Context, spec CreateIntentSpec) (*IntentRecord, error) {
	amount := spec.Amount
	data := IntentData{
		Handle: spec.Handle,
		Schema: intentSchema,
		Claims: []Claim{{
			Action: "transfer",
			Source: &Ref{Handle: c.claimSource},
			Target: &Ref{Handle: spec.ClaimTargetHandle},
			Symbol: &Ref{Handle: spec.SymbolHandle},
			Amount: &amount,
		}},
		Access: []Access{{
			Action: "any",
			Signer: &Signer{Public: c.signer.Public},
		}},
	}
	custom := make(map[string]any, len(spec.Custom)+1)
	for k, v := range spec.Custom {
		custom[k] = v
	}
	if spec.MerchantTxID != "" {
		custom["merchantTxId"] = spec.MerchantTxID
	}
	if len(custom) > 0 {
		data.Custom = custom
	}

	signatureCustom := map[string]any{
		"moment": time.Now().UTC().Format(time.RFC3339),
		"status": statusCreated,
	}
	proof, err := c.signer.SignRecord(data, signatureCustom)
	if err != nil {
		return nil, err
	}

	labels := []string{FormatLabel(spec.AnchorHandle, spec.AnchorSchema)}
	if spec.MerchantTxID != "" {
		labels = append(labels, FormatLabel(spec.MerchantTxID, ReservedMerchantTxIDTag))
	}

	body := IntentRecord{
		Data: data,
		Hash: recordHash(data),
		Meta: Meta{Labels: labels, Proofs: []Proof{proof}},
	}

	var created IntentRecord
	if err := c.do(ctx, http.MethodPost, "/intents", nil, body, &created); err != nil {
		return nil, fmt.Errorf("create intent %s: %w", spec.Handle, err)
	}
	c.logger.Info("intent created", "intent", created.CanonicalHandle())
	return &created, nil
}

func (c *HTTPClient) AddAnchorLabelToIntent(ctx context.Context, intentHandle, anchorHandle, schema string) (*IntentRecord, error) {
	label := FormatLabel(anchorHandle, schema)
	signatureCustom := map[string]any{
		"moment": time.Now().UTC().Format(time.RFC3339),
		"labels": map[string]any{"$addToSet": label},
	}
	if err := c.postIntentProof(ctx, intentHandle, signatureCustom); err != nil {
		return nil, fmt.Errorf("add anchor label to intent %s: %w", intentHandle, err)
	}
	c.logger.Info("anchor label added to intent", "intent", intentHandle, "label", label)
	return c.GetIntent(ctx, intentHandle)
}

func (c *HTTPClient) SubmitProof(ctx context.Context, intentHandle string, detail map[string]any) error {
	signatureCustom := map[string]any{
		"moment":   time.Now().UTC().Format(time.RFC3339),
		"status":   "committed",
		"evidence": detail,
	}
	if err := c.postIntentProof(ctx, intentHandle, signatureCustom); err != nil {
		return fmt.Errorf("submit proof to intent %s: %w", intentHandle, err)
	}
	c.logger.Info("proof submitted", "intent", intentHandle)
	return nil
}

func (c *HTTPClient) IntentHasCommittedProofFromUs(ctx context.Context, intentHandle string) (bool, error) {
	intent, err := c.GetIntent(ctx, intentHandle)
	if err != nil {
		return false, err
	}
	return intent.Meta.HasProofFrom(c.signer.Public, "committed"), nil
}

func (c *HTTPClient) AnchorHasProofFromUs(ctx context.Context, anchorHandle, status string) (bool, error) {
	anchor, err := c.GetAnchor(ctx, anchorHandle)
	if err != nil {
		return false, err
	}
	return anchor.Meta.HasProofFrom(c.signer.Public, status), nil
}

func (c *HTTPClient) AddProofToAnchor(ctx context.Context, anchorHandle string, custom map[string]any) error {
	anchor, err := c.GetAnchor(ctx, anchorHandle)
	if err != nil {
		return fmt.Errorf("read anchor %s: %w", anchorHandle, err)
	}
	signatureCustom := make(map[string]any, len(custom)+1)
	for k, v := range custom {
		signatureCustom[k] = v
	}
	if _, ok := signatureCustom["moment"]; !ok {
		signatureCustom["moment"] = time.Now().UTC().Format(time.RFC3339)
	}
	proof, err := c.signer.SignRecord(anchor.Data, signatureCustom)
	if err != nil {
		return err
	}
	body := proofEnvelope{Hash: anchor.Hash, Proof: proof}
	path := "/anchors/" + url.PathEscape(anchorHandle) + "/proofs"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("add proof to anchor %s: %w", anchorHandle, err)
	}
	c.logger.Info("proof added to anchor", "anchor", anchorHandle)
	return nil
}

func (c *HTTPClient) AnchorHandlesFromIntentLabels(intent *IntentRecord) []string {
	if intent == nil {
		return nil
	}
	return AnchorHandlesFromLabels(intent.Meta.Labels)
}

// postIntentProof re-reads the intent and posts a proof signed over its
// current data section. The record hash travels with the proof so the ledger
// can reject the write when the record moved underneath us.
func (c *HTTPClient) postIntentProof(ctx context.Context, intentHandle string, signatureCustom map[string]any) error {
	intent, err := c.GetIntent(ctx, intentHandle)
	if err != nil {
		return err
	}
	proof, err := c.signer.SignRecord(intent.Data, signatureCustom)
	if err != nil {
		return err
	}
	body := proofEnvelope{Hash: intent.Hash, Proof: proof}
	path := "/intents/" + url.PathEscape(intentHandle) + "/proofs"
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

type proofEnvelope struct {
	Hash  string `json:"hash,omitempty"`
	Proof Proof  `json:"proof"`
}

type apiError struct {
	Reason  string `json:"reason"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	token, err := c.signer.BearerToken(c.ledgerName, bearerTokenTTL)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read ledger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		detail := ae.Detail
		if detail == "" {
			detail = ae.Message
		}
		return &Error{Status: resp.StatusCode, Reason: ae.Reason, Detail: detail}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}

func recordHash(data any) string {
	canonical, err := canonicalJSON(data)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
