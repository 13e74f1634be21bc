// Package mysql implements the entity and mention repositories on GORM.
package mysql

import (
	"context"
	"errors"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

type entityRepository struct {
	db *db.DB
}

// NewEntityRepository creates the GORM-backed EntityRepository.
func NewEntityRepository(database *db.DB) domain.EntityRepository {
	return &entityRepository{db: database}
}

func (r *entityRepository) FindByID(ctx context.Context, id uint64) (*domain.Entity, error) {
	var entity domain.Entity
	err := r.db.WithContext(ctx).Preload("Aliases").First(&entity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *entityRepository) FindByNormalizedName(ctx context.Context, entityType domain.EntityType, normalized string) (*domain.Entity, error) {
	var key domain.EntityNameKey
	err := r.db.WithContext(ctx).
		First(&key, "entity_type = ? AND normalized_name = ?", entityType, normalized).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entity, err := r.FindByID(ctx, key.EntityID)
	if err != nil {
		return nil, err
	}
	// Name keys are repointed at merge time; follow a stale winner pointer
	// one hop if a merge raced this lookup.
	if entity != nil && entity.Merged() {
		return r.FindByID(ctx, *entity.MergedIntoID)
	}
	return entity, nil
}

func (r *entityRepository) ListCandidates(ctx context.Context, entityType domain.EntityType) ([]*domain.Entity, error) {
	var entities []*domain.Entity
	err := r.db.WithContext(ctx).
		Preload("Aliases").
		Where("entity_type = ? AND merged_into_id IS NULL", entityType).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *entityRepository) Create(ctx context.Context, entity *domain.Entity, rawName string) error {
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(entity).Error; err != nil {
			return err
		}
		key := domain.EntityNameKey{
			EntityType:     entity.EntityType,
			NormalizedName: entity.NormalizedName,
			EntityID:       entity.ID,
		}
		if err := tx.Create(&key).Error; err != nil {
			return err
		}
		alias := domain.EntityAlias{
			EntityID:       entity.ID,
			EntityType:     entity.EntityType,
			RawName:        rawName,
			NormalizedName: entity.NormalizedName,
		}
		return tx.Create(&alias).Error
	})
	if isDuplicateKey(err) {
		return domain.ErrNameKeyConflict
	}
	return err
}

func (r *entityRepository) AddAlias(ctx context.Context, entityID uint64, entityType domain.EntityType, rawName, normalized string) error {
	alias := domain.EntityAlias{
		EntityID:       entityID,
		EntityType:     entityType,
		RawName:        rawName,
		NormalizedName: normalized,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&alias).Error
	if err != nil && !isDuplicateKey(err) {
		return err
	}

	// Claim the normalized form for the fast path. A conflict here means
	// another entity already owns it; the overlap surfaces through
	// FindAliasOverlaps and is left to batch reconciliation.
	key := domain.EntityNameKey{
		EntityType:     entityType,
		NormalizedName: normalized,
		EntityID:       entityID,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&key).Error
	if err != nil && !isDuplicateKey(err) {
		return err
	}
	return nil
}

func (r *entityRepository) RecordMentionSeen(ctx context.Context, entityID uint64, seenAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Entity{}).
		Where("id = ?", entityID).
		Updates(map[string]interface{}{
			"mention_count": gorm.Expr("mention_count + 1"),
			"last_seen_at":  gorm.Expr("GREATEST(last_seen_at, ?)", seenAt),
		}).Error
}

func (r *entityRepository) Merge(ctx context.Context, winnerID, loserID uint64) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Mention{}).
			Where("entity_id = ?", loserID).
			Update("entity_id", winnerID).Error; err != nil {
			return err
		}
		// Union the alias sets: move spellings the winner lacks, drop the
		// duplicates left behind.
		if err := tx.Exec(`UPDATE entity_aliases a
			LEFT JOIN entity_aliases w ON w.entity_id = ? AND w.raw_name = a.raw_name
			SET a.entity_id = ?
			WHERE a.entity_id = ? AND w.id IS NULL`, winnerID, winnerID, loserID).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_id = ?", loserID).
			Delete(&domain.EntityAlias{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.EntityNameKey{}).
			Where("entity_id = ?", loserID).
			Update("entity_id", winnerID).Error; err != nil {
			return err
		}

		var loserCount int64
		if err := tx.Model(&domain.Entity{}).
			Select("mention_count").
			Where("id = ?", loserID).
			Scan(&loserCount).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Entity{}).
			Where("id = ?", winnerID).
			Updates(map[string]interface{}{
				"mention_count": gorm.Expr("mention_count + ?", loserCount),
			}).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Entity{}).
			Where("id = ?", loserID).
			Update("merged_into_id", winnerID).Error
	})
}

func (r *entityRepository) FindAliasOverlaps(ctx context.Context) ([]domain.AliasOverlap, error) {
	type overlapRow struct {
		EntityType     domain.EntityType `gorm:"column:entity_type"`
		NormalizedName string            `gorm:"column:normalized_name"`
		EntityID       uint64            `gorm:"column:entity_id"`
	}

	var rows []overlapRow
	err := r.db.WithContext(ctx).
		Table("entity_aliases AS a").
		Select("a.entity_type, a.normalized_name, a.entity_id").
		Joins("JOIN entities e ON e.id = a.entity_id AND e.merged_into_id IS NULL").
		Where(`(a.entity_type, a.normalized_name) IN (
			SELECT entity_type, normalized_name FROM entity_aliases
			GROUP BY entity_type, normalized_name
			HAVING COUNT(DISTINCT entity_id) > 1)`).
		Order("a.entity_type, a.normalized_name, a.entity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var overlaps []domain.AliasOverlap
	for _, row := range rows {
		n := len(overlaps)
		if n > 0 && overlaps[n-1].EntityType == row.EntityType && overlaps[n-1].NormalizedName == row.NormalizedName {
			overlaps[n-1].EntityIDs = append(overlaps[n-1].EntityIDs, row.EntityID)
			continue
		}
		overlaps = append(overlaps, domain.AliasOverlap{
			EntityType:     row.EntityType,
			NormalizedName: row.NormalizedName,
			EntityIDs:      []uint64{row.EntityID},
		})
	}

	// Merged losers were filtered above; drop groups that collapsed to one.
	filtered := overlaps[:0]
	for _, o := range overlaps {
		if len(o.EntityIDs) > 1 {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gosqlmysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
