package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tripboard/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrActivityNotFound 在指定活动不存在或不属于该行程时返回
	ErrActivityNotFound = errors.New("activity not found")
	// ErrActivityCommitted 在活动已被锁定到某时段却执行删除时返回
	ErrActivityCommitted = errors.New("activity is committed to a block")
	// ErrProposalNotFound 在指定提名不存在时返回
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrProposalExists 在同一时段重复提名同一活动时返回
	ErrProposalExists = errors.New("activity already proposed for this block")
)

// ActivityService 负责活动与提名的维护
// 提名是追加式记录：创建后不再修改，只会被 soft_block 清理或时段重置删除
type ActivityService struct {
	db *gorm.DB
}

// ActivityInput 定义创建/更新活动时可配置字段
type ActivityInput struct {
	Title        string
	Category     string
	CostAmount   float64
	CostCurrency string
	DurationMin  int
	Location     string
	Notes        string
}

// NewActivityService 构造 ActivityService
func NewActivityService(gdb *gorm.DB) *ActivityService {
	return &ActivityService{db: gdb}
}

// Create 新建活动
func (s *ActivityService) Create(tripID, createdBy uint, input ActivityInput) (*db.Activity, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("activity title is required")
	}

	var trip db.Trip
	if err := s.db.First(&trip, tripID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("find trip: %w", err)
	}

	activity := db.Activity{
		TripID:       tripID,
		Title:        title,
		Category:     strings.TrimSpace(input.Category),
		CostAmount:   input.CostAmount,
		CostCurrency: strings.TrimSpace(input.CostCurrency),
		DurationMin:  input.DurationMin,
		Location:     strings.TrimSpace(input.Location),
		Notes:        input.Notes,
		CreatedBy:    createdBy,
	}
	if err := s.db.Create(&activity).Error; err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	return &activity, nil
}

// List 返回行程的全部活动
func (s *ActivityService) List(tripID uint) ([]db.Activity, error) {
	var activities []db.Activity
	if err := s.db.Where("trip_id = ?", tripID).Order("created_at ASC").Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// Get 根据 ID 获取活动
func (s *ActivityService) Get(activityID uint) (*db.Activity, error) {
	var activity db.Activity
	if err := s.db.First(&activity, activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &activity, nil
}

// Update 更新活动信息
func (s *ActivityService) Update(activityID uint, input ActivityInput) (*db.Activity, error) {
	activity, err := s.Get(activityID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("activity title is required")
	}

	activity.Title = title
	activity.Category = strings.TrimSpace(input.Category)
	activity.CostAmount = input.CostAmount
	activity.CostCurrency = strings.TrimSpace(input.CostCurrency)
	activity.DurationMin = input.DurationMin
	activity.Location = strings.TrimSpace(input.Location)
	activity.Notes = input.Notes

	if err := s.db.Save(activity).Error; err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	return activity, nil
}

// Delete 删除活动及其提名与选票；已被提交锁定的活动拒绝删除
func (s *ActivityService) Delete(activityID uint) error {
	activity, err := s.Get(activityID)
	if err != nil {
		return err
	}

	var committed int64
	if err := s.db.Model(&db.BlockCommit{}).Where("activity_id = ?", activityID).Count(&committed).Error; err != nil {
		return fmt.Errorf("check commits: %w", err)
	}
	if committed > 0 {
		return ErrActivityCommitted
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id = ?", activityID).Delete(&db.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("activity_id = ?", activityID).Delete(&db.BlockProposal{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(activity).Error
	})
}

// Propose 将活动提名为时段候选，同一时段内同一活动只能提名一次
func (s *ActivityService) Propose(blockID, activityID uint, member *db.TripMember) (*db.BlockProposal, error) {
	var block db.Block
	if err := s.db.First(&block, blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("find block: %w", err)
	}

	var day db.Day
	if err := s.db.First(&day, block.DayID).Error; err != nil {
		return nil, fmt.Errorf("find day: %w", err)
	}
	if day.TripID != member.TripID {
		return nil, ErrBlockNotFound
	}

	var activity db.Activity
	if err := s.db.First(&activity, activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("find activity: %w", err)
	}
	if activity.TripID != member.TripID {
		return nil, ErrActivityNotFound
	}

	var count int64
	if err := s.db.Model(&db.BlockProposal{}).
		Where("block_id = ? AND activity_id = ?", blockID, activityID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check proposal: %w", err)
	}
	if count > 0 {
		return nil, ErrProposalExists
	}

	proposal := db.BlockProposal{
		TripID:     member.TripID,
		BlockID:    blockID,
		ActivityID: activityID,
		CreatedBy:  member.ID,
	}
	if err := s.db.Create(&proposal).Error; err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	proposal.Activity = activity
	return &proposal, nil
}

// Proposals 返回时段的候选列表
func (s *ActivityService) Proposals(blockID uint) ([]db.BlockProposal, error) {
	var proposals []db.BlockProposal
	if err := s.db.Preload("Activity").
		Where("block_id = ?", blockID).
		Order("created_at ASC").
		Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// Withdraw 撤回提名：仅提名者本人或组织者可操作
func (s *ActivityService) Withdraw(proposalID uint, member *db.TripMember) error {
	var proposal db.BlockProposal
	if err := s.db.First(&proposal, proposalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProposalNotFound
		}
		return fmt.Errorf("find proposal: %w", err)
	}

	if proposal.TripID != member.TripID {
		return ErrProposalNotFound
	}
	if proposal.CreatedBy != member.ID && member.Role != db.RoleOrganizer {
		return ErrNotOrganizer
	}

	if err := s.db.Delete(&proposal).Error; err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	return nil
}
