package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripboard/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrDayNotFound 在指定日期条目不存在时返回
	ErrDayNotFound = errors.New("day not found")
	// ErrDayExists 在同一行程内重复添加同一天时返回
	ErrDayExists = errors.New("day already exists for this date")
	// ErrBlockNotFound 在指定时段不存在或不属于该行程时返回
	ErrBlockNotFound = errors.New("block not found")
	// ErrBlockExists 在同一天内重复使用时段名称时返回
	ErrBlockExists = errors.New("block label already exists for this day")
	// ErrBlockCommitted 在时段已有提交却执行删除/重置等操作时返回
	ErrBlockCommitted = errors.New("block holds a commit")
	// ErrInvalidVoteWindow 在投票窗口起止时间颠倒时返回
	ErrInvalidVoteWindow = errors.New("vote window opens after it closes")
)

// ScheduleService 负责日期与时段的维护
// 删除使用 Unscoped 硬删除，保证 (trip,date) 与 (day,label) 的唯一值可以被复用
type ScheduleService struct {
	db *gorm.DB
}

// BlockInput 定义创建/更新时段时可配置字段
type BlockInput struct {
	Label       string
	Position    int
	VoteOpenAt  *time.Time
	VoteCloseAt *time.Time
}

// NewScheduleService 构造 ScheduleService
func NewScheduleService(gdb *gorm.DB) *ScheduleService {
	return &ScheduleService{db: gdb}
}

// AddDay 为行程添加一天，同一行程内日期唯一
func (s *ScheduleService) AddDay(tripID uint, date time.Time) (*db.Day, error) {
	var trip db.Trip
	if err := s.db.First(&trip, tripID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("find trip: %w", err)
	}

	normalized := normalizeToDate(date)

	var count int64
	if err := s.db.Model(&db.Day{}).
		Where("trip_id = ? AND date = ?", tripID, normalized).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check day: %w", err)
	}
	if count > 0 {
		return nil, ErrDayExists
	}

	day := db.Day{TripID: tripID, Date: normalized}
	if err := s.db.Create(&day).Error; err != nil {
		return nil, fmt.Errorf("create day: %w", err)
	}
	return &day, nil
}

// ListDays 返回行程的全部日期及其时段，按日期与时段位置排序
func (s *ScheduleService) ListDays(tripID uint) ([]db.Day, error) {
	var days []db.Day
	if err := s.db.
		Preload("Blocks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC, id ASC")
		}).
		Where("trip_id = ?", tripID).
		Order("date ASC").
		Find(&days).Error; err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	return days, nil
}

// DeleteDay 删除一天及其全部时段；任一时段已有提交时拒绝
func (s *ScheduleService) DeleteDay(dayID uint) error {
	var day db.Day
	if err := s.db.First(&day, dayID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDayNotFound
		}
		return fmt.Errorf("find day: %w", err)
	}

	var blockIDs []uint
	if err := s.db.Model(&db.Block{}).Where("day_id = ?", dayID).Pluck("id", &blockIDs).Error; err != nil {
		return fmt.Errorf("list blocks: %w", err)
	}

	if len(blockIDs) > 0 {
		var committed int64
		if err := s.db.Model(&db.BlockCommit{}).Where("block_id IN ?", blockIDs).Count(&committed).Error; err != nil {
			return fmt.Errorf("check commits: %w", err)
		}
		if committed > 0 {
			return ErrBlockCommitted
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(blockIDs) > 0 {
			if err := tx.Where("block_id IN ?", blockIDs).Delete(&db.Vote{}).Error; err != nil {
				return err
			}
			if err := tx.Where("block_id IN ?", blockIDs).Delete(&db.BlockProposal{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("day_id = ?", dayID).Delete(&db.Block{}).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&db.Day{}, dayID).Error
	})
}

// AddBlock 在指定日期下新建时段，同一天内名称唯一
func (s *ScheduleService) AddBlock(dayID uint, input BlockInput) (*db.Block, error) {
	var day db.Day
	if err := s.db.First(&day, dayID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDayNotFound
		}
		return nil, fmt.Errorf("find day: %w", err)
	}

	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, fmt.Errorf("block label is required")
	}
	if err := validateVoteWindow(input.VoteOpenAt, input.VoteCloseAt); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&db.Block{}).
		Where("day_id = ? AND label = ?", dayID, label).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check block: %w", err)
	}
	if count > 0 {
		return nil, ErrBlockExists
	}

	block := db.Block{
		DayID:       dayID,
		Label:       label,
		Position:    input.Position,
		VoteOpenAt:  input.VoteOpenAt,
		VoteCloseAt: input.VoteCloseAt,
	}
	if err := s.db.Create(&block).Error; err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return &block, nil
}

// UpdateBlock 更新时段名称、排序与投票窗口
func (s *ScheduleService) UpdateBlock(blockID uint, input BlockInput) (*db.Block, error) {
	var block db.Block
	if err := s.db.First(&block, blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("find block: %w", err)
	}

	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, fmt.Errorf("block label is required")
	}
	if err := validateVoteWindow(input.VoteOpenAt, input.VoteCloseAt); err != nil {
		return nil, err
	}

	if label != block.Label {
		var count int64
		if err := s.db.Model(&db.Block{}).
			Where("day_id = ? AND label = ? AND id <> ?", block.DayID, label, blockID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check block: %w", err)
		}
		if count > 0 {
			return nil, ErrBlockExists
		}
	}

	block.Label = label
	block.Position = input.Position
	block.VoteOpenAt = input.VoteOpenAt
	block.VoteCloseAt = input.VoteCloseAt

	if err := s.db.Save(&block).Error; err != nil {
		return nil, fmt.Errorf("update block: %w", err)
	}
	return &block, nil
}

// DeleteBlock 删除时段及其提名与选票；已有提交时拒绝
func (s *ScheduleService) DeleteBlock(blockID uint) error {
	if _, _, err := s.Block(blockID); err != nil {
		return err
	}

	var committed int64
	if err := s.db.Model(&db.BlockCommit{}).Where("block_id = ?", blockID).Count(&committed).Error; err != nil {
		return fmt.Errorf("check commit: %w", err)
	}
	if committed > 0 {
		return ErrBlockCommitted
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("block_id = ?", blockID).Delete(&db.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("block_id = ?", blockID).Delete(&db.BlockProposal{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&db.Block{}, blockID).Error
	})
}

// ResetBlock 清空时段的全部提名与选票，让讨论从头开始
// 已提交的时段必须先撤销提交才能重置
func (s *ScheduleService) ResetBlock(blockID uint) error {
	if _, _, err := s.Block(blockID); err != nil {
		return err
	}

	var committed int64
	if err := s.db.Model(&db.BlockCommit{}).Where("block_id = ?", blockID).Count(&committed).Error; err != nil {
		return fmt.Errorf("check commit: %w", err)
	}
	if committed > 0 {
		return ErrBlockCommitted
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("block_id = ?", blockID).Delete(&db.Vote{}).Error; err != nil {
			return err
		}
		return tx.Where("block_id = ?", blockID).Delete(&db.BlockProposal{}).Error
	})
}

// Block 返回时段及其所属行程 ID
func (s *ScheduleService) Block(blockID uint) (*db.Block, uint, error) {
	var block db.Block
	if err := s.db.First(&block, blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrBlockNotFound
		}
		return nil, 0, fmt.Errorf("find block: %w", err)
	}

	var day db.Day
	if err := s.db.First(&day, block.DayID).Error; err != nil {
		return nil, 0, fmt.Errorf("find day: %w", err)
	}
	return &block, day.TripID, nil
}

func validateVoteWindow(open, close *time.Time) error {
	if open != nil && close != nil && close.Before(*open) {
		return ErrInvalidVoteWindow
	}
	return nil
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
