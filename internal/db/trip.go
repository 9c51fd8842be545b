package db

import (
	"time"

	"gorm.io/gorm"
)

// 行程级别的重复活动策略：同一活动能否被锁定到多个时段
const (
	PolicyAllow     = "allow"
	PolicySoftBlock = "soft_block"
	PolicyPrevent   = "prevent"
)

// 成员角色，organizer 是提交/撤销/交换操作的唯一授权角色
const (
	RoleOrganizer    = "organizer"
	RoleCollaborator = "collaborator"
)

// Trip 定义了行程模型
// DuplicatePolicy 在首个提交产生之前可由组织者修改，之后锁定
// ShareCode 为邀请口令，持有者可加入为协作者
type Trip struct {
	gorm.Model
	Name            string `gorm:"not null"`
	Destination     string
	StartDate       *time.Time
	EndDate         *time.Time
	Currency        string
	DuplicatePolicy string `gorm:"not null;default:soft_block"`
	ShareCode       string `gorm:"uniqueIndex;not null"`
	CreatedBy       uint   `gorm:"index"`
	Members         []TripMember
	Days            []Day
	Activities      []Activity
}

// TripMember 记录用户在某个行程内的身份与角色
// Trip + User 唯一，一个用户在同一行程内只有一个成员身份
type TripMember struct {
	gorm.Model
	TripID      uint   `gorm:"not null;uniqueIndex:idx_trip_members_trip_user"`
	UserID      uint   `gorm:"not null;uniqueIndex:idx_trip_members_trip_user"`
	Role        string `gorm:"not null"`
	DisplayName string
}

// ValidPolicy 校验重复活动策略取值
func ValidPolicy(policy string) bool {
	switch policy {
	case PolicyAllow, PolicySoftBlock, PolicyPrevent:
		return true
	}
	return false
}
