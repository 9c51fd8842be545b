package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tripboard/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrTripNotFound 在指定行程不存在时返回
	ErrTripNotFound = errors.New("trip not found")
	// ErrMemberNotFound 在成员身份无法解析或不属于该行程时返回
	ErrMemberNotFound = errors.New("trip member not found")
	// ErrNotTripMember 在用户不是行程成员时返回
	ErrNotTripMember = errors.New("user is not a member of this trip")
	// ErrNotOrganizer 在需要组织者角色的操作被协作者调用时返回
	ErrNotOrganizer = errors.New("organizer role required")
	// ErrAlreadyMember 在用户重复加入同一行程时返回
	ErrAlreadyMember = errors.New("user already joined this trip")
	// ErrShareCodeMismatch 在邀请口令不匹配时返回
	ErrShareCodeMismatch = errors.New("share code mismatch")
	// ErrInvalidPolicy 在重复活动策略取值非法时返回
	ErrInvalidPolicy = errors.New("invalid duplicate policy")
	// ErrPolicyLocked 在行程已存在提交后试图修改策略时返回
	ErrPolicyLocked = errors.New("duplicate policy is locked once commits exist")
	// ErrInvalidRole 在角色取值非法时返回
	ErrInvalidRole = errors.New("invalid member role")
	// ErrLastOrganizer 在试图降级行程内最后一名组织者时返回
	ErrLastOrganizer = errors.New("trip requires at least one organizer")
)

// TripService 负责行程与成员数据的维护
// 成员身份（TripMember）是投票与提交协议的授权来源
type TripService struct {
	db *gorm.DB
}

// TripInput 定义创建/更新行程时可配置字段
type TripInput struct {
	Name            string
	Destination     string
	StartDate       *time.Time
	EndDate         *time.Time
	Currency        string
	DuplicatePolicy string
}

// NewTripService 构造 TripService
func NewTripService(gdb *gorm.DB) *TripService {
	return &TripService{db: gdb}
}

// Create 新建行程，创建者自动成为组织者
func (s *TripService) Create(userID uint, input TripInput) (*db.Trip, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("trip name is required")
	}

	policy := strings.TrimSpace(input.DuplicatePolicy)
	if policy == "" {
		policy = db.PolicySoftBlock
	}
	if !db.ValidPolicy(policy) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, input.DuplicatePolicy)
	}

	trip := db.Trip{
		Name:            name,
		Destination:     strings.TrimSpace(input.Destination),
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Currency:        strings.TrimSpace(input.Currency),
		DuplicatePolicy: policy,
		ShareCode:       uuid.NewString(),
		CreatedBy:       userID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trip).Error; err != nil {
			return err
		}

		var user db.User
		displayName := ""
		if err := tx.First(&user, userID).Error; err == nil {
			displayName = user.DisplayName
			if displayName == "" {
				displayName = user.Username
			}
		}

		member := db.TripMember{
			TripID:      trip.ID,
			UserID:      userID,
			Role:        db.RoleOrganizer,
			DisplayName: displayName,
		}
		return tx.Create(&member).Error
	}); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	return &trip, nil
}

// List 返回用户参与的全部行程
func (s *TripService) List(userID uint) ([]db.Trip, error) {
	var trips []db.Trip
	if err := s.db.
		Joins("JOIN trip_members ON trip_members.trip_id = trips.id AND trip_members.deleted_at IS NULL").
		Where("trip_members.user_id = ?", userID).
		Order("trips.created_at DESC").
		Find(&trips).Error; err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}

// Get 根据 ID 获取行程
func (s *TripService) Get(tripID uint) (*db.Trip, error) {
	var trip db.Trip
	if err := s.db.First(&trip, tripID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("get trip: %w", err)
	}
	return &trip, nil
}

// Update 更新行程基础信息
// 重复活动策略仅在行程尚无任何提交时允许变更
func (s *TripService) Update(tripID uint, input TripInput) (*db.Trip, error) {
	trip, err := s.Get(tripID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("trip name is required")
	}

	policy := strings.TrimSpace(input.DuplicatePolicy)
	if policy == "" {
		policy = trip.DuplicatePolicy
	}
	if !db.ValidPolicy(policy) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, input.DuplicatePolicy)
	}

	if policy != trip.DuplicatePolicy {
		var commitCount int64
		if err := s.db.Model(&db.BlockCommit{}).Where("trip_id = ?", tripID).Count(&commitCount).Error; err != nil {
			return nil, fmt.Errorf("count commits: %w", err)
		}
		if commitCount > 0 {
			return nil, ErrPolicyLocked
		}
	}

	trip.Name = name
	trip.Destination = strings.TrimSpace(input.Destination)
	trip.StartDate = input.StartDate
	trip.EndDate = input.EndDate
	trip.Currency = strings.TrimSpace(input.Currency)
	trip.DuplicatePolicy = policy

	if err := s.db.Save(trip).Error; err != nil {
		return nil, fmt.Errorf("update trip: %w", err)
	}
	return trip, nil
}

// Delete 删除行程及其全部附属数据
func (s *TripService) Delete(tripID uint) error {
	if _, err := s.Get(tripID); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", tripID).Delete(&db.BlockCommit{}).Error; err != nil {
			return err
		}
		if err := tx.Where("trip_id = ?", tripID).Delete(&db.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("trip_id = ?", tripID).Delete(&db.BlockProposal{}).Error; err != nil {
			return err
		}

		var dayIDs []uint
		if err := tx.Model(&db.Day{}).Where("trip_id = ?", tripID).Pluck("id", &dayIDs).Error; err != nil {
			return err
		}
		if len(dayIDs) > 0 {
			if err := tx.Unscoped().Where("day_id IN ?", dayIDs).Delete(&db.Block{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Unscoped().Where("trip_id = ?", tripID).Delete(&db.Day{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("trip_id = ?", tripID).Delete(&db.Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("trip_id = ?", tripID).Delete(&db.TripMember{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&db.Trip{}, tripID).Error
	})
}

// Join 通过邀请口令加入行程，新成员为协作者
func (s *TripService) Join(tripID, userID uint, shareCode, displayName string) (*db.TripMember, error) {
	trip, err := s.Get(tripID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(shareCode) != trip.ShareCode {
		return nil, ErrShareCodeMismatch
	}

	if _, err := s.Member(tripID, userID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrNotTripMember) {
		return nil, err
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		var user db.User
		if err := s.db.First(&user, userID).Error; err == nil {
			name = user.DisplayName
			if name == "" {
				name = user.Username
			}
		}
	}

	member := db.TripMember{
		TripID:      tripID,
		UserID:      userID,
		Role:        db.RoleCollaborator,
		DisplayName: name,
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, fmt.Errorf("join trip: %w", err)
	}
	return &member, nil
}

// Members 返回行程的成员列表
func (s *TripService) Members(tripID uint) ([]db.TripMember, error) {
	if _, err := s.Get(tripID); err != nil {
		return nil, err
	}

	var members []db.TripMember
	if err := s.db.Where("trip_id = ?", tripID).Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Member 解析用户在行程内的成员身份
func (s *TripService) Member(tripID, userID uint) (*db.TripMember, error) {
	var member db.TripMember
	if err := s.db.Where("trip_id = ? AND user_id = ?", tripID, userID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotTripMember
		}
		return nil, fmt.Errorf("resolve member: %w", err)
	}
	return &member, nil
}

// UpdateMemberRole 调整成员角色，行程内必须始终保留至少一名组织者
func (s *TripService) UpdateMemberRole(tripID, memberID uint, role string) (*db.TripMember, error) {
	if role != db.RoleOrganizer && role != db.RoleCollaborator {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

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

	if member.Role == db.RoleOrganizer && role == db.RoleCollaborator {
		var organizerCount int64
		if err := s.db.Model(&db.TripMember{}).
			Where("trip_id = ? AND role = ?", tripID, db.RoleOrganizer).
			Count(&organizerCount).Error; err != nil {
			return nil, fmt.Errorf("count organizers: %w", err)
		}
		if organizerCount <= 1 {
			return nil, ErrLastOrganizer
		}
	}

	member.Role = role
	if err := s.db.Save(&member).Error; err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	return &member, nil
}
