package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/database"
)

// BagCountUpdate is a reading pushed by the bag-counting integration.
// Nil fields are left unchanged.
type BagCountUpdate struct {
	Serial           string     `json:"serial" validate:"required"`
	TowerPosition    int        `json:"tower_position" validate:"required,min=1"`
	LoadedBagCount   *int       `json:"loaded_bag_count" validate:"omitempty,min=0"`
	UnloadedBagCount *int       `json:"unloaded_bag_count" validate:"omitempty,min=0"`
	LoadingStart     *time.Time `json:"loading_start"`
	LoadingEnd       *time.Time `json:"loading_end"`
}

// BagCountService is the only writer of bag counts and loading times on wagon rows.
type BagCountService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBagCountService creates a new bag count service
func NewBagCountService(db *gorm.DB, logger *zap.Logger) *BagCountService {
	return &BagCountService{db: db, logger: logger.Named("bagcount")}
}

// Record writes the integration columns of the wagon at (serial, tower position).
func (s *BagCountService) Record(ctx context.Context, u BagCountUpdate) (int64, error) {
	rakeSerial, err := parseSerial(u.Serial)
	if err != nil {
		return 0, err
	}

	updates := map[string]interface{}{}
	if u.LoadedBagCount != nil {
		updates["loaded_bag_count"] = *u.LoadedBagCount
	}
	if u.UnloadedBagCount != nil {
		updates["unloaded_bag_count"] = *u.UnloadedBagCount
	}
	if u.LoadingStart != nil {
		updates["loading_start"] = *u.LoadingStart
	}
	if u.LoadingEnd != nil {
		updates["loading_end"] = *u.LoadingEnd
	}
	if len(updates) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Model(&database.WagonRow{}).
		Where("serial = ? AND tower_position = ?", rakeSerial, u.TowerPosition).
		UpdateColumns(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("record bag count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("wagon %s/%d: %w", rakeSerial, u.TowerPosition, ErrNotFound)
	}

	s.logger.Debug("bag count recorded",
		zap.String("serial", rakeSerial),
		zap.Int("tower_position", u.TowerPosition),
		zap.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}
