package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hector-minka/collections-bridge/internal/domain"
	"github.com/hector-minka/collections-bridge/internal/observability"
)

var ErrCollectionNotFound = errors.New("collection not found")

// CollectionListFilter narrows List results. Zero values mean no filter.
type CollectionListFilter struct {
	Status       string
	MerchantTxID string
}

type CollectionRepository interface {
	FindByMerchantTxID(ctx context.Context, merchantTxID string) (*domain.Collection, error)
	FindByAnchorHandle(ctx context.Context, anchorHandle string) (*domain.Collection, error)
	FindByIntentHandle(ctx context.Context, intentHandle string) (*domain.Collection, error)
	Create(ctx context.Context, collection *domain.Collection) error
	Save(ctx context.Context, collection *domain.Collection) error
	List(ctx context.Context, filter CollectionListFilter) ([]domain.Collection, error)
	ListPaged(ctx context.Context, filter CollectionListFilter, page PageRequest) (*PageResult[domain.Collection], error)

	// CreateOrGetByMerchantTxID inserts the collection, or fetches the
	// existing row when another delivery already claimed the merchantTxId.
	// The bool reports whether the returned collection was just created.
	CreateOrGetByMerchantTxID(ctx context.Context, collection *domain.Collection) (*domain.Collection, bool, error)
}

type GormCollectionRepository struct{ db *gorm.DB }

func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &GormCollectionRepository{db: db}
}

func (r *GormCollectionRepository) FindByMerchantTxID(ctx context.Context, merchantTxID string) (*domain.Collection, error) {
	return r.findOne(ctx, "find_by_merchant_txid", "merchant_tx_id = ?", merchantTxID)
}

func (r *GormCollectionRepository) FindByAnchorHandle(ctx context.Context, anchorHandle string) (*domain.Collection, error) {
	return r.findOne(ctx, "find_by_anchor_handle", "anchor_handle = ?", anchorHandle)
}

func (r *GormCollectionRepository) FindByIntentHandle(ctx context.Context, intentHandle string) (*domain.Collection, error) {
	return r.findOne(ctx, "find_by_intent_handle", "intent_handle = ?", intentHandle)
}

func (r *GormCollectionRepository) findOne(ctx context.Context, op, cond, key string) (*domain.Collection, error) {
	var collection domain.Collection
	err := r.db.WithContext(ctx).Where(cond, key).First(&collection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "collection", op, "not_found")
			return nil, ErrCollectionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "collection", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "collection", op, "success")
	return &collection, nil
}

func (r *GormCollectionRepository) Create(ctx context.Context, collection *domain.Collection) error {
	if err := r.db.WithContext(ctx).Create(collection).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "collection", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "collection", "create", "success")
	return nil
}

func (r *GormCollectionRepository) Save(ctx context.Context, collection *domain.Collection) error {
	if err := r.db.WithContext(ctx).Save(collection).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "collection", "save", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "collection", "save", "success")
	return nil
}

func (r *GormCollectionRepository) List(ctx context.Context, filter CollectionListFilter) ([]domain.Collection, error) {
	q := r.db.WithContext(ctx).Model(&domain.Collection{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.MerchantTxID != "" {
		q = q.Where("merchant_tx_id = ?", filter.MerchantTxID)
	}
	var collections []domain.Collection
	if err := q.Order("created_at DESC").Find(&collections).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "collection", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "collection", "list", "success")
	return collections, nil
}

func (r *GormCollectionRepository) ListPaged(ctx context.Context, filter CollectionListFilter, page PageRequest) (*PageResult[domain.Collection], error) {
	page = normalizePageRequest(page)
	q := r.db.WithContext(ctx).Model(&domain.Collection{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.MerchantTxID != "" {
		q = q.Where("merchant_tx_id = ?", filter.MerchantTxID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "collection", "list_paged", "error")
		return nil, err
	}
	var collections []domain.Collection
	err := q.Order("created_at DESC").
		Offset((page.Page - 1) * page.PageSize).
		Limit(page.PageSize).
		Find(&collections).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "collection", "list_paged", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "collection", "list_paged", "success")
	return &PageResult[domain.Collection]{
		Items:      collections,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, page.PageSize),
	}, nil
}

func (r *GormCollectionRepository) CreateOrGetByMerchantTxID(ctx context.Context, collection *domain.Collection) (*domain.Collection, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_tx_id"}},
		DoNothing: true,
	}).Create(collection)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "collection", "create_or_get", "error")
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		observability.RecordRepositoryOperation(ctx, "collection", "create_or_get", "created")
		return collection, true, nil
	}
	existing, err := r.FindByMerchantTxID(ctx, collection.MerchantTxID)
	if err != nil {
		return nil, false, err
	}
	observability.RecordRepositoryOperation(ctx, "collection", "create_or_get", "existing")
	return existing, false, nil
}
