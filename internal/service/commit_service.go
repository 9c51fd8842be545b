package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tripboard/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyCommitted 在时段已有提交时返回，并发提交的失败方也会收到它
	ErrAlreadyCommitted = errors.New("block already holds a commit")
	// ErrNotCommitted 在时段没有提交却执行撤销/查询时返回
	ErrNotCommitted = errors.New("block holds no commit")
	// ErrNoVotes 在无人投票且未手动指定胜者时返回
	ErrNoVotes = errors.New("block has no votes")
	// ErrBothMustBeCommitted 在交换操作中任一时段缺少提交时返回
	ErrBothMustBeCommitted = errors.New("both blocks must be committed to swap")
	// ErrSwapSameBlock 在对同一时段自身执行交换时返回
	ErrSwapSameBlock = errors.New("cannot swap a block with itself")
)

// 提交结果状态：软失败（平票/重复警告）不是错误，携带数据供调用方带参数重试
const (
	CommitStatusCommitted        = "committed"
	CommitStatusTieDetected      = "tie_detected"
	CommitStatusDuplicateWarning = "duplicate_warning"
)

// CommitLocation 描述活动已被锁定到的位置，用于重复策略提示
type CommitLocation struct {
	BlockID    uint      `json:"block_id"`
	BlockLabel string    `json:"block_label"`
	DayID      uint      `json:"day_id"`
	DayDate    time.Time `json:"day_date"`
}

// DuplicateForbiddenError 在 prevent 策略下携带已有提交位置，无任何覆盖路径
type DuplicateForbiddenError struct {
	ActivityID uint
	Locations  []CommitLocation
}

func (e *DuplicateForbiddenError) Error() string {
	return fmt.Sprintf("activity %d already committed elsewhere in this trip", e.ActivityID)
}

// SwapCorruptedError 表示交换中途失败且回滚也失败，状态不一致需人工修复
type SwapCorruptedError struct {
	BlockID1 uint
	BlockID2 uint
	Err      error
}

func (e *SwapCorruptedError) Error() string {
	return fmt.Sprintf("swap left commits inconsistent between block %d and block %d: %v", e.BlockID1, e.BlockID2, e.Err)
}

func (e *SwapCorruptedError) Unwrap() error {
	return e.Err
}

// CommitResult 是提交操作的统一返回
// Status 为 committed 时 Commit 已持久化；为 tie_detected/duplicate_warning 时
// 提交未发生，调用方应带 ManualActivityID 或 ConfirmDuplicate 重新发起
type CommitResult struct {
	Status   string
	Commit   *db.BlockCommit
	Tally    *TallyResult
	Policy   string
	Tied     []TallyEntry
	Existing []CommitLocation
}

// CommitInput 定义提交操作的可选参数
// ManualActivityID 用于平票后的手动决标，也允许组织者直接锁定一个没有选票的活动
type CommitInput struct {
	ManualActivityID uint
	ConfirmDuplicate bool
}

// CommitService 实现提交状态机：Open -> Committed 及其逆向/交换操作
// 授权、幂等守卫与重复策略都在这里收口；真正的并发防线是 block_id 唯一索引
type CommitService struct {
	db    *gorm.DB
	votes *VoteService
	now   func() time.Time
}

// NewCommitService 构造 CommitService
func NewCommitService(gdb *gorm.DB, votes *VoteService) *CommitService {
	return &CommitService{db: gdb, votes: votes, now: time.Now}
}

// CommitBlock 将胜出活动锁定到时段
// 顺序：授权 -> 幂等守卫 -> 胜者解析 -> 重复策略 -> 插入 -> soft_block 清理
func (s *CommitService) CommitBlock(tripID, blockID, memberID uint, input CommitInput) (*CommitResult, error) {
	member, err := s.requireOrganizer(tripID, memberID)
	if err != nil {
		return nil, err
	}

	trip, err := s.findTrip(tripID)
	if err != nil {
		return nil, err
	}

	if err := s.blockBelongsToTrip(tripID, blockID); err != nil {
		return nil, err
	}

	var existing db.BlockCommit
	if err := s.db.Where("block_id = ?", blockID).First(&existing).Error; err == nil {
		return nil, ErrAlreadyCommitted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check commit: %w", err)
	}

	tally, err := s.votes.Tally(blockID)
	if err != nil {
		return nil, err
	}

	winnerID := input.ManualActivityID
	if winnerID != 0 {
		// 手动决标不校验该活动是否在计票中出现，允许锁定零票活动
		var activity db.Activity
		if err := s.db.First(&activity, winnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrActivityNotFound
			}
			return nil, fmt.Errorf("find activity: %w", err)
		}
		if activity.TripID != tripID {
			return nil, ErrActivityNotFound
		}
	} else {
		if len(tally.Entries) == 0 {
			return nil, ErrNoVotes
		}

		top := tally.Entries[0].Count
		tied := make([]TallyEntry, 0, len(tally.Entries))
		for _, entry := range tally.Entries {
			if entry.Count == top {
				tied = append(tied, entry)
			}
		}
		if len(tied) > 1 {
			return &CommitResult{
				Status: CommitStatusTieDetected,
				Tally:  tally,
				Policy: trip.DuplicatePolicy,
				Tied:   tied,
			}, nil
		}
		winnerID = tally.Entries[0].ActivityID
	}

	if trip.DuplicatePolicy != db.PolicyAllow {
		locations, err := s.commitLocations(tripID, winnerID, blockID)
		if err != nil {
			return nil, err
		}
		if len(locations) > 0 {
			if trip.DuplicatePolicy == db.PolicyPrevent {
				return nil, &DuplicateForbiddenError{ActivityID: winnerID, Locations: locations}
			}
			if !input.ConfirmDuplicate {
				return &CommitResult{
					Status:   CommitStatusDuplicateWarning,
					Tally:    tally,
					Policy:   trip.DuplicatePolicy,
					Existing: locations,
				}, nil
			}
		}
	}

	commit := db.BlockCommit{
		TripID:      tripID,
		BlockID:     blockID,
		ActivityID:  winnerID,
		CommittedBy: member.ID,
		CommittedAt: s.now(),
	}
	if err := s.db.Create(&commit).Error; err != nil {
		// 唯一索引冲突意味着并发提交已经抢先落库
		if isUniqueViolation(err) {
			return nil, ErrAlreadyCommitted
		}
		return nil, fmt.Errorf("persist commit: %w", err)
	}

	if trip.DuplicatePolicy == db.PolicySoftBlock {
		// 清理失败只记录日志：提交本身才是事实来源，残留提名只是显示噪音
		if err := s.db.
			Where("trip_id = ? AND activity_id = ? AND block_id <> ?", tripID, winnerID, blockID).
			Delete(&db.BlockProposal{}).Error; err != nil {
			log.Printf("failed to clean superseded proposals for activity %d: %v", winnerID, err)
		}
	}

	if err := s.db.First(&commit.Activity, winnerID).Error; err != nil {
		return nil, fmt.Errorf("load committed activity: %w", err)
	}

	return &CommitResult{
		Status: CommitStatusCommitted,
		Commit: &commit,
		Tally:  tally,
		Policy: trip.DuplicatePolicy,
	}, nil
}

// UncommitBlock 撤销提交，时段回到 Open 状态
// 不会恢复 soft_block 清理掉的提名，重新提名需要手动进行
func (s *CommitService) UncommitBlock(tripID, blockID, memberID uint) error {
	if _, err := s.requireOrganizer(tripID, memberID); err != nil {
		return err
	}

	var commit db.BlockCommit
	if err := s.db.Where("trip_id = ? AND block_id = ?", tripID, blockID).First(&commit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotCommitted
		}
		return fmt.Errorf("find commit: %w", err)
	}

	if err := s.db.Delete(&commit).Error; err != nil {
		return fmt.Errorf("delete commit: %w", err)
	}
	return nil
}

// 交换时的临时占位 block_id，真实 block 主键从 1 开始
const swapPlaceholderBlockID uint = 0

// SwapCommits 交换两个时段的提交
// 三步走：提交1移到占位值 -> 提交2移入时段1 -> 提交1移入时段2
// 每步失败都尽力回滚，回滚也失败时返回 SwapCorruptedError 留待人工处理
func (s *CommitService) SwapCommits(tripID, blockID1, blockID2, memberID uint) error {
	if _, err := s.requireOrganizer(tripID, memberID); err != nil {
		return err
	}
	if blockID1 == blockID2 {
		return ErrSwapSameBlock
	}

	var commit1, commit2 db.BlockCommit
	if err := s.db.Where("trip_id = ? AND block_id = ?", tripID, blockID1).First(&commit1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBothMustBeCommitted
		}
		return fmt.Errorf("find commit: %w", err)
	}
	if err := s.db.Where("trip_id = ? AND block_id = ?", tripID, blockID2).First(&commit2).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBothMustBeCommitted
		}
		return fmt.Errorf("find commit: %w", err)
	}

	moveCommit := func(commitID, targetBlockID uint) error {
		return s.db.Model(&db.BlockCommit{}).
			Where("id = ?", commitID).
			Update("block_id", targetBlockID).Error
	}

	if err := moveCommit(commit1.ID, swapPlaceholderBlockID); err != nil {
		return fmt.Errorf("swap step 1: %w", err)
	}

	if err := moveCommit(commit2.ID, blockID1); err != nil {
		if rbErr := moveCommit(commit1.ID, blockID1); rbErr != nil {
			return &SwapCorruptedError{BlockID1: blockID1, BlockID2: blockID2, Err: rbErr}
		}
		return fmt.Errorf("swap step 2: %w", err)
	}

	if err := moveCommit(commit1.ID, blockID2); err != nil {
		if rbErr := moveCommit(commit2.ID, blockID2); rbErr != nil {
			return &SwapCorruptedError{BlockID1: blockID1, BlockID2: blockID2, Err: rbErr}
		}
		if rbErr := moveCommit(commit1.ID, blockID1); rbErr != nil {
			return &SwapCorruptedError{BlockID1: blockID1, BlockID2: blockID2, Err: rbErr}
		}
		return fmt.Errorf("swap step 3: %w", err)
	}

	return nil
}

// GetCommit 返回时段当前的提交及活动详情
func (s *CommitService) GetCommit(blockID uint) (*db.BlockCommit, error) {
	var commit db.BlockCommit
	if err := s.db.Preload("Activity").Where("block_id = ?", blockID).First(&commit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotCommitted
		}
		return nil, fmt.Errorf("get commit: %w", err)
	}
	return &commit, nil
}

// ListCommits 返回行程的全部提交，按锁定时间排序
func (s *CommitService) ListCommits(tripID uint) ([]db.BlockCommit, error) {
	var commits []db.BlockCommit
	if err := s.db.Preload("Activity").
		Where("trip_id = ?", tripID).
		Order("committed_at ASC").
		Find(&commits).Error; err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	return commits, nil
}

func (s *CommitService) findTrip(tripID uint) (*db.Trip, error) {
	var trip db.Trip
	if err := s.db.First(&trip, tripID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("find trip: %w", err)
	}
	return &trip, nil
}

func (s *CommitService) requireOrganizer(tripID, memberID uint) (*db.TripMember, error) {
	var member db.TripMember
	if err := s.db.First(&member, memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	if member.TripID != tripID {
		return nil, ErrMemberNotFound
	}
	if member.Role != db.RoleOrganizer {
		return nil, ErrNotOrganizer
	}
	return &member, nil
}

func (s *CommitService) blockBelongsToTrip(tripID, blockID uint) error {
	var block db.Block
	if err := s.db.First(&block, blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBlockNotFound
		}
		return fmt.Errorf("find block: %w", err)
	}

	var day db.Day
	if err := s.db.First(&day, block.DayID).Error; err != nil {
		return fmt.Errorf("find day: %w", err)
	}
	if day.TripID != tripID {
		return ErrBlockNotFound
	}
	return nil
}

// commitLocations 查找该活动在行程内其他时段的提交位置
func (s *CommitService) commitLocations(tripID, activityID, excludeBlockID uint) ([]CommitLocation, error) {
	var locations []CommitLocation
	if err := s.db.Model(&db.BlockCommit{}).
		Select("block_commits.block_id AS block_id, blocks.label AS block_label, days.id AS day_id, days.date AS day_date").
		Joins("JOIN blocks ON blocks.id = block_commits.block_id").
		Joins("JOIN days ON days.id = blocks.day_id").
		Where("block_commits.trip_id = ? AND block_commits.activity_id = ? AND block_commits.block_id <> ?",
			tripID, activityID, excludeBlockID).
		Order("days.date ASC, blocks.position ASC").
		Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("find existing commits: %w", err)
	}
	return locations, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
