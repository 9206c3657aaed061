package catalog

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"regioncd/app/internal/region"
)

const (
	importBatchSize = 500
	maxCandidates   = 50
)

var (
	// ErrNotFound is returned when no district name contains the query.
	ErrNotFound = eris.New("지역명을 찾을 수 없습니다.")
	// ErrAmbiguous is returned when several districts match; narrow the query down to the sigungu.
	ErrAmbiguous = eris.New("동명이인 지역이 여러 개 있습니다. 시군구까지 입력해주세요.")
)

// Match is the result of a catalog lookup.
type Match struct {
	Code       string
	Name       string
	Candidates []string
}

// Repository stores and queries districts using a Gorm database connection.
type Repository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed catalog repository.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*Repository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &Repository{db: db, logger: logger}, nil
}

// Import upserts districts by code and returns how many rows were written.
func (r *Repository) Import(ctx context.Context, districts []District) (int, error) {
	if len(districts) == 0 {
		return 0, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"sido", "sigungu", "eupmyeondong", "full_name", "updated_at"}),
		}).CreateInBatches(districts, importBatchSize).Error
	})
	if err != nil {
		r.logError(logrus.Fields{"rows": len(districts)}, err, "importing districts")
		return 0, eris.Wrap(err, "importing districts")
	}

	if r.logger != nil {
		r.logger.WithField("rows", len(districts)).Info("catalog import complete")
	}

	return len(districts), nil
}

// Count returns the number of stored districts.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64

	if err := r.db.WithContext(ctx).Model(&District{}).Count(&count).Error; err != nil {
		r.logError(nil, err, "counting districts")
		return 0, eris.Wrap(err, "counting districts")
	}

	return count, nil
}

// Find looks up the single district whose full name contains the query.
// Several matches yield ErrAmbiguous with the candidate names attached to the match.
func (r *Repository) Find(ctx context.Context, query string) (*Match, error) {
	normalized := region.NormalizeQuery(query)
	if normalized == "" {
		return nil, region.ErrEmptyQuery
	}

	var districts []District
	err := r.db.WithContext(ctx).
		Where("instr(full_name, ?) > 0", normalized).
		Order("full_name ASC").
		Limit(maxCandidates + 1).
		Find(&districts).Error
	if err != nil {
		r.logError(logrus.Fields{"query": normalized}, err, "finding district")
		return nil, eris.Wrapf(err, "finding district: %s", normalized)
	}

	switch len(districts) {
	case 0:
		return nil, eris.Wrapf(ErrNotFound, "query %q", normalized)
	case 1:
		return &Match{Code: districts[0].Code, Name: districts[0].FullName}, nil
	}

	candidates := make([]string, 0, min(len(districts), maxCandidates))
	for _, district := range districts[:min(len(districts), maxCandidates)] {
		candidates = append(candidates, district.FullName)
	}

	return &Match{Candidates: candidates}, eris.Wrapf(ErrAmbiguous, "query %q matched %s", normalized, strings.Join(candidates, ", "))
}

func (r *Repository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil || err == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
