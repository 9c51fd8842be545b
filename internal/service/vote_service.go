package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/tripboard/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrVotingNotOpen 在时段投票窗口尚未开启时返回
	ErrVotingNotOpen = errors.New("voting has not opened for this block")
	// ErrVotingClosed 在时段投票窗口已经关闭时返回
	ErrVotingClosed = errors.New("voting has closed for this block")
)

// VoteService 负责选票的写入与计票
// 投票是追加式记录：重复投票幂等返回已有选票，不做更新也不报错
// now 可注入，测试中用固定时钟校验投票窗口
type VoteService struct {
	db  *gorm.DB
	now func() time.Time
}

// TallyEntry 表示计票结果中单个活动的得票
type TallyEntry struct {
	ActivityID uint   `json:"activity_id"`
	Title      string `json:"title"`
	Count      int    `json:"count"`
}

// TallyResult 汇总时段的计票结果
// Entries 按得票数降序排列；并列时保持数据源顺序，不引入第二排序键
type TallyResult struct {
	BlockID        uint         `json:"block_id"`
	Entries        []TallyEntry `json:"entries"`
	TotalVotes     int          `json:"total_votes"`
	DistinctVoters int          `json:"distinct_voters"`
}

// NewVoteService 构造 VoteService
func NewVoteService(gdb *gorm.DB) *VoteService {
	return &VoteService{db: gdb, now: time.Now}
}

// Cast 投出一票
// Block + Activity + Member 冲突时不插入新行，直接返回已有选票
func (s *VoteService) Cast(tripID, blockID, activityID, memberID uint) (*db.Vote, error) {
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
	if day.TripID != tripID {
		return nil, ErrBlockNotFound
	}

	var activity db.Activity
	if err := s.db.First(&activity, activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("find activity: %w", err)
	}
	if activity.TripID != tripID {
		return nil, ErrActivityNotFound
	}

	now := s.now()
	if block.VoteOpenAt != nil && now.Before(*block.VoteOpenAt) {
		return nil, ErrVotingNotOpen
	}
	if block.VoteCloseAt != nil && now.After(*block.VoteCloseAt) {
		return nil, ErrVotingClosed
	}

	vote := db.Vote{
		TripID:     tripID,
		BlockID:    blockID,
		ActivityID: activityID,
		MemberID:   memberID,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "block_id"}, {Name: "activity_id"}, {Name: "member_id"}},
		DoNothing: true,
	}).Create(&vote).Error; err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	// 冲突时 Create 不回填主键，统一重新读取
	if err := s.db.
		Where("block_id = ? AND activity_id = ? AND member_id = ?", blockID, activityID, memberID).
		First(&vote).Error; err != nil {
		return nil, fmt.Errorf("reload vote: %w", err)
	}

	return &vote, nil
}

// Tally 计算时段的得票分布，只读不修改任何状态
func (s *VoteService) Tally(blockID uint) (*TallyResult, error) {
	var block db.Block
	if err := s.db.First(&block, blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("find block: %w", err)
	}

	var entries []TallyEntry
	if err := s.db.Model(&db.Vote{}).
		Select("votes.activity_id AS activity_id, activities.title AS title, COUNT(*) AS count").
		Joins("JOIN activities ON activities.id = votes.activity_id").
		Where("votes.block_id = ?", blockID).
		Group("votes.activity_id").
		Order("count DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("tally votes: %w", err)
	}

	total := 0
	for _, entry := range entries {
		total += entry.Count
	}

	var voters int64
	if err := s.db.Model(&db.Vote{}).
		Where("block_id = ?", blockID).
		Distinct("member_id").
		Count(&voters).Error; err != nil {
		return nil, fmt.Errorf("count voters: %w", err)
	}

	return &TallyResult{
		BlockID:        blockID,
		Entries:        entries,
		TotalVotes:     total,
		DistinctVoters: int(voters),
	}, nil
}
