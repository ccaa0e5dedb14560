package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hector-minka/collections-bridge/internal/domain"
	"github.com/hector-minka/collections-bridge/internal/ledger"
	"github.com/hector-minka/collections-bridge/internal/observability"
	"github.com/hector-minka/collections-bridge/internal/repository"
)

const (
	anchorProofStatusCompleted = "COMPLETED"
	intentStatusCommitted      = "committed"
)

// CollectionsService drives both reconciliation flows: anchor arrival links a
// local collection to a ledger intent, fulfillment confirmation submits the
// settlement proof and completes the collection. The two flows never call
// each other; they share only the repository and the ledger client.
type CollectionsService struct {
	repo   repository.CollectionRepository
	ledger ledger.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewCollectionsService(repo repository.CollectionRepository, client ledger.Client, logger *slog.Logger) *CollectionsService {
	return &CollectionsService{
		repo:   repo,
		ledger: client,
		logger: logger.With("component", "collections_service"),
		now:    time.Now,
	}
}

// HandleAnchorCreated processes an anchor-arrival event: upserts the
// collection keyed by merchantTxId and links it to a ledger intent derived
// from the anchor. Idempotent: a redelivered event converges to the same
// linked state without a second collection or a second intent.
func (s *CollectionsService) HandleAnchorCreated(ctx context.Context, event *AnchorCreatedEvent) (*domain.Collection, error) {
	if !event.HasAnchor() {
		observability.RecordReconcilerRun(ctx, "anchor_created", "invalid")
		return nil, missingField("data.anchor")
	}
	anchor, err := event.AnchorRecord()
	if err != nil {
		observability.RecordReconcilerRun(ctx, "anchor_created", "invalid")
		return nil, err
	}
	anchorHandle := anchor.Data.Handle
	if anchorHandle == "" {
		observability.RecordReconcilerRun(ctx, "anchor_created", "invalid")
		return nil, missingField("data.anchor.data.handle")
	}

	ids, err := DeriveIdentifiers(anchor)
	if err != nil {
		observability.RecordReconcilerRun(ctx, "anchor_created", "invalid")
		return nil, err
	}
	if ids.MerchantTxIDFallback {
		s.logger.Warn("merchantTxId missing from anchor metadata, using intent handle",
			"merchant_tx_id", ids.MerchantTxID, "anchor", anchorHandle)
	}

	schema := anchor.Data.Schema
	collection, err := s.upsertCollection(ctx, ids.MerchantTxID, anchorHandle, schema, event.AnchorSnapshot())
	if err != nil {
		observability.RecordReconcilerRun(ctx, "anchor_created", "store_error")
		return nil, fmt.Errorf("upsert collection %s: %w", ids.MerchantTxID, err)
	}

	intent, err := s.resolveIntent(ctx, ids, anchorHandle, schema)
	if err != nil {
		observability.RecordReconcilerRun(ctx, "anchor_created", "ledger_error")
		return nil, err
	}

	resolvedHandle := intent.CanonicalHandle()
	if resolvedHandle == "" {
		resolvedHandle = ids.IntentHandle
	}

	collection.IntentHandle = resolvedHandle
	collection.IntentData = toDocument(intent)
	if err := s.repo.Save(ctx, collection); err != nil {
		observability.RecordReconcilerRun(ctx, "anchor_created", "store_error")
		return nil, fmt.Errorf("save collection %s: %w", collection.ID, err)
	}

	s.logger.Info("anchor linked to intent",
		"anchor", anchorHandle, "intent", resolvedHandle, "merchant_tx_id", ids.MerchantTxID)
	observability.RecordReconcilerRun(ctx, "anchor_created", "success")
	return collection, nil
}

// upsertCollection inserts or refreshes the collection for a merchantTxId.
// The insert-or-fetch keeps concurrent duplicate deliveries from racing the
// unique merchant_tx_id index. Schema is set once and never overwritten.
func (s *CollectionsService) upsertCollection(ctx context.Context, merchantTxID, anchorHandle, schema string, snapshot domain.Document) (*domain.Collection, error) {
	candidate := &domain.Collection{
		MerchantTxID: merchantTxID,
		AnchorHandle: anchorHandle,
		Schema:       schema,
		Status:       domain.CollectionStatusPending,
		AnchorData:   snapshot,
	}
	collection, created, err := s.repo.CreateOrGetByMerchantTxID(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("collection created", "merchant_tx_id", merchantTxID, "anchor", anchorHandle)
		return collection, nil
	}

	collection.AnchorHandle = anchorHandle
	collection.AnchorData = snapshot
	if collection.Schema == "" && schema != "" {
		collection.Schema = schema
	}
	if err := s.repo.Save(ctx, collection); err != nil {
		return nil, err
	}
	s.logger.Info("collection updated with new anchor", "merchant_tx_id", merchantTxID, "anchor", anchorHandle)
	return collection, nil
}

// resolveIntent links the anchor to its ledger intent: attach a label when
// the intent exists, create it otherwise, and fall back to label-attach when
// the create loses a duplicate race.
func (s *CollectionsService) resolveIntent(ctx context.Context, ids *DerivedIdentifiers, anchorHandle, schema string) (*ledger.IntentRecord, error) {
	_, err := s.ledger.GetIntent(ctx, ids.IntentHandle)
	if err == nil {
		labelSchema := schema
		if labelSchema == "" {
			labelSchema = "unknown"
		}
		s.logger.Info("intent exists, attaching anchor label", "intent", ids.IntentHandle, "anchor", anchorHandle)
		observability.RecordLedgerSideEffect(ctx, "label_attach")
		return s.ledger.AddAnchorLabelToIntent(ctx, ids.IntentHandle, anchorHandle, labelSchema)
	}

	createSchema := schema
	if createSchema == "" {
		createSchema = "payment-collection"
	}
	created, createErr := s.ledger.CreateIntent(ctx, ledger.CreateIntentSpec{
		Handle:            ids.IntentHandle,
		AnchorHandle:      anchorHandle,
		AnchorSchema:      createSchema,
		ClaimTargetHandle: ids.ClaimTargetHandle,
		SymbolHandle:      ids.SymbolHandle,
		Amount:            ids.Amount,
		MerchantTxID:      ids.MerchantTxID,
	})
	if createErr == nil {
		observability.RecordLedgerSideEffect(ctx, "intent_create")
		return created, nil
	}
	if !ledger.IsDuplicate(createErr) {
		return nil, fmt.Errorf("create intent %s: %w", ids.IntentHandle, createErr)
	}

	labelSchema := schema
	if labelSchema == "" {
		labelSchema = "unknown"
	}
	s.logger.Info("duplicate intent on create, attaching anchor label", "intent", ids.IntentHandle, "anchor", anchorHandle)
	observability.RecordLedgerSideEffect(ctx, "label_attach")
	return s.ledger.AddAnchorLabelToIntent(ctx, ids.IntentHandle, anchorHandle, labelSchema)
}

// ProcessIntentUpdated processes a fulfillment-confirmation event. It runs
// after the webhook has been acknowledged, so the returned error is only
// logged by the task runner, never surfaced upstream. A nil return means the
// event is fully reconciled (or a terminal no-op) and its redelivery can be
// suppressed; a non-nil return leaves the event unrecorded so the next
// delivery retries.
func (s *CollectionsService) ProcessIntentUpdated(ctx context.Context, event *IntentUpdatedEvent, meta RequestMeta) error {
	logger := s.logger.With("flow", "fulfillment", "method", meta.Method, "path", meta.Path)

	status := event.Status()
	upstreamHandle := event.UpstreamIntentHandle()
	logger.Info("fulfillment event received", "status", status, "upstream_intent", upstreamHandle)

	if status != intentStatusCommitted {
		logger.Info("ignoring fulfillment event with non-committed status", "status", status)
		observability.RecordReconcilerRun(ctx, "fulfillment", "skipped_status")
		return nil
	}

	target := event.FirstClaimTarget()
	idQR, aliasValue := paymentIDFromTarget(target)
	if idQR == "" && aliasValue == "" {
		logger.Warn("fulfillment event carries neither idQR nor aliasValue, skipping",
			"upstream_intent", upstreamHandle)
		observability.RecordReconcilerRun(ctx, "fulfillment", "skipped_no_reference")
		return nil
	}

	anchor, err := s.ledger.FindAnchorByPaymentIDOrAlias(ctx, idQR, aliasValue)
	if err != nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "error")
		return fmt.Errorf("anchor lookup idQR=%s alias=%s: %w", idQR, aliasValue, err)
	}
	if anchor == nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "anchor_not_found")
		return fmt.Errorf("no anchor found for idQR=%s alias=%s", idQR, aliasValue)
	}
	anchorHandle := anchor.Data.Handle

	intentHandle, merchantTxID, err := fulfillmentIntentHandle(anchor)
	if err != nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "error")
		return fmt.Errorf("derive intent handle from anchor %s: %w", anchorHandle, err)
	}

	intent, err := s.ledger.GetIntent(ctx, intentHandle)
	if err != nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "intent_not_found")
		return fmt.Errorf("read intent %s: %w", intentHandle, err)
	}

	fulfilledAt := s.now().UTC()
	detail := map[string]any{
		"rtpIntentHandle":      upstreamHandle,
		"rtpStatus":            status,
		"fulfillmentTimestamp": fulfilledAt.Format(time.RFC3339),
		"anchorHandle":         anchorHandle,
	}

	alreadyProven, err := s.ledger.IntentHasCommittedProofFromUs(ctx, intentHandle)
	if err != nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "error")
		return fmt.Errorf("proof presence check on %s: %w", intentHandle, err)
	}
	if alreadyProven {
		logger.Info("intent already carries our committed proof, skipping submission", "intent", intentHandle)
	} else {
		if err := s.ledger.SubmitProof(ctx, intentHandle, detail); err != nil {
			observability.RecordReconcilerRun(ctx, "fulfillment", "error")
			return fmt.Errorf("submit proof to %s: %w", intentHandle, err)
		}
		observability.RecordLedgerSideEffect(ctx, "proof_submit")
	}

	if err := s.closeLinkedAnchors(ctx, logger, intent, anchor); err != nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "error")
		return err
	}

	if err := s.completeCollection(ctx, logger, intentHandle, merchantTxID, detail, fulfilledAt, alreadyProven); err != nil {
		observability.RecordReconcilerRun(ctx, "fulfillment", "error")
		return err
	}
	observability.RecordReconcilerRun(ctx, "fulfillment", "success")
	return nil
}

// closeLinkedAnchors propagates the fulfillment to every anchor linked to the
// intent via its labels, so one settlement closes all anchors sharing the
// intent. Per-anchor failures are logged without stopping the sweep; the
// first one is returned so a redelivery retries the anchors still open.
func (s *CollectionsService) closeLinkedAnchors(ctx context.Context, logger *slog.Logger, intent *ledger.IntentRecord, resolved *ledger.AnchorRecord) error {
	paymentRef := ""
	if resolved.Data.Custom != nil {
		paymentRef = resolved.Data.Custom.PaymentReferenceNumber
	}
	var firstErr error
	for _, handle := range s.ledger.AnchorHandlesFromIntentLabels(intent) {
		has, err := s.ledger.AnchorHasProofFromUs(ctx, handle, anchorProofStatusCompleted)
		if err != nil {
			logger.Error("anchor proof presence check failed", "anchor", handle, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("anchor proof presence check on %s: %w", handle, err)
			}
			continue
		}
		if has {
			continue
		}
		custom := map[string]any{
			"status":                 anchorProofStatusCompleted,
			"reason":                 "completed",
			"paymentReferenceNumber": paymentRef,
		}
		if err := s.ledger.AddProofToAnchor(ctx, handle, custom); err != nil {
			logger.Error("closing proof on anchor failed", "anchor", handle, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("close anchor %s: %w", handle, err)
			}
			continue
		}
		observability.RecordLedgerSideEffect(ctx, "anchor_proof")
		logger.Info("closing proof added to anchor", "anchor", handle)
	}
	return firstErr
}

// completeCollection marks the local record COMPLETED. Lookup by the
// ledger-side intent handle first, merchantTxId as fallback. Status only ever
// moves forward; a collection that is already COMPLETED is left untouched.
func (s *CollectionsService) completeCollection(ctx context.Context, logger *slog.Logger, intentHandle, merchantTxID string, detail map[string]any, fulfilledAt time.Time, alreadyProven bool) error {
	collection, err := s.repo.FindByIntentHandle(ctx, intentHandle)
	if errors.Is(err, repository.ErrCollectionNotFound) {
		collection, err = s.repo.FindByMerchantTxID(ctx, merchantTxID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrCollectionNotFound) {
			logger.Warn("no local collection for fulfilled intent",
				"intent", intentHandle, "merchant_tx_id", merchantTxID)
			return nil
		}
		return fmt.Errorf("collection lookup for intent %s: %w", intentHandle, err)
	}
	if collection.Status == domain.CollectionStatusCompleted {
		logger.Info("collection already completed", "collection", collection.ID)
		return nil
	}
	if alreadyProven {
		// The proof exists from a prior run that must have died before the
		// local write; completing here reconverges local state without a new
		// remote side effect.
		logger.Info("completing collection from pre-existing proof", "collection", collection.ID)
	}
	collection.Status = domain.CollectionStatusCompleted
	collection.FulfillmentEvidence = domain.Document(detail)
	collection.FulfilledAt = &fulfilledAt
	if err := s.repo.Save(ctx, collection); err != nil {
		return fmt.Errorf("save completed collection %s: %w", collection.ID, err)
	}
	logger.Info("collection completed", "collection", collection.ID, "intent", intentHandle)
	return nil
}

// fulfillmentIntentHandle re-runs the merchant-code/payment-reference
// extraction on the anchor resolved from a fulfillment claim.
func fulfillmentIntentHandle(anchor *ledger.AnchorRecord) (intentHandle, merchantTxID string, err error) {
	merchantCode := merchantCodeFromTarget(anchor.Data.Target)
	if merchantCode == "" {
		return "", "", missingField("merchantCode")
	}
	paymentRef := ""
	if anchor.Data.Custom != nil {
		paymentRef = anchor.Data.Custom.PaymentReferenceNumber
	}
	if paymentRef == "" {
		return "", "", missingField("custom.paymentReferenceNumber")
	}
	intentHandle = merchantCode + ":" + paymentRef
	merchantTxID = ""
	if anchor.Data.Custom != nil {
		merchantTxID = anchor.Data.Custom.MerchantTxID()
	}
	if merchantTxID == "" {
		merchantTxID = intentHandle
	}
	return intentHandle, merchantTxID, nil
}

// paymentIDFromTarget pulls idQR (canonical and common case variants) or
// aliasValue from a claim target's custom fields.
func paymentIDFromTarget(target *ledger.Ref) (idQR, aliasValue string) {
	if target == nil {
		return "", ""
	}
	for _, key := range []string{"idQR", "idQr"} {
		if v := target.CustomString(key); v != "" {
			idQR = v
			break
		}
	}
	aliasValue = target.CustomString("aliasValue")
	return idQR, aliasValue
}

func toDocument(v any) domain.Document {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var doc domain.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil
	}
	return doc
}

// GetCollectionByMerchantTxID returns the collection tracked for a merchant
// transaction id.
func (s *CollectionsService) GetCollectionByMerchantTxID(ctx context.Context, merchantTxID string) (*domain.Collection, error) {
	return s.repo.FindByMerchantTxID(ctx, merchantTxID)
}

func (s *CollectionsService) GetCollectionByAnchorHandle(ctx context.Context, anchorHandle string) (*domain.Collection, error) {
	return s.repo.FindByAnchorHandle(ctx, anchorHandle)
}

func (s *CollectionsService) GetCollectionByIntentHandle(ctx context.Context, intentHandle string) (*domain.Collection, error) {
	return s.repo.FindByIntentHandle(ctx, intentHandle)
}

func (s *CollectionsService) ListCollections(ctx context.Context, filter repository.CollectionListFilter) ([]domain.Collection, error) {
	return s.repo.List(ctx, filter)
}

func (s *CollectionsService) ListCollectionsPaged(ctx context.Context, filter repository.CollectionListFilter, page repository.PageRequest) (*repository.PageResult[domain.Collection], error) {
	return s.repo.ListPaged(ctx, filter, page)
}
