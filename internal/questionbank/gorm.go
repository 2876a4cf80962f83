package questionbank

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/examind/test-engine/internal/models"
)

// GormRepository serves questions and test configs from Postgres. It also
// carries the write methods the xlsx importer needs; the engine itself only
// uses the read side.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates the backing tables.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.QuestionRecord{}, &models.TestConfig{})
}

func (r *GormRepository) FindByID(ctx context.Context, id int) (*models.QuestionRecord, error) {
	var q models.QuestionRecord
	if err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question %d: %w", id, err)
	}
	return &q, nil
}

func (r *GormRepository) FindTestByID(ctx context.Context, id string) (*models.TestConfig, error) {
	var t models.TestConfig
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test %s: %w", id, err)
	}
	return &t, nil
}

// SaveQuestions upserts a batch of question records in one transaction.
func (r *GormRepository) SaveQuestions(ctx context.Context, questions []*models.QuestionRecord) error {
	if len(questions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range questions {
			if err := tx.Save(q).Error; err != nil {
				return fmt.Errorf("failed to save question %d: %w", q.ID, err)
			}
		}
		return nil
	})
}

// SaveTest upserts a test configuration.
func (r *GormRepository) SaveTest(ctx context.Context, test *models.TestConfig) error {
	if err := r.db.WithContext(ctx).Save(test).Error; err != nil {
		return fmt.Errorf("failed to save test %s: %w", test.ID, err)
	}
	return nil
}
