// Package mysql implements the risk assessment repository on GORM.
package mysql

import (
	"context"
	"errors"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/db"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

type assessmentRepository struct {
	db *db.DB
}

// NewAssessmentRepository creates the GORM-backed AssessmentRepository.
func NewAssessmentRepository(database *db.DB) domain.AssessmentRepository {
	return &assessmentRepository{db: database}
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *domain.RiskAssessment) (bool, error) {
	err := r.db.WithContext(ctx).Create(assessment).Error
	if err == nil {
		return false, nil
	}
	if isDuplicateKey(err) {
		return true, nil
	}
	return false, err
}

func (r *assessmentRepository) FindByEventID(ctx context.Context, eventID string) (*domain.RiskAssessment, error) {
	var assessment domain.RiskAssessment
	err := r.db.WithContext(ctx).First(&assessment, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (r *assessmentRepository) Replace(ctx context.Context, assessment *domain.RiskAssessment) error {
	return r.db.WithContext(ctx).Save(assessment).Error
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gosqlmysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
