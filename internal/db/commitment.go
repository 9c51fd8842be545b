package db

import "time"

// BlockCommit 表示某活动已胜出并被锁定到某时段的持久记录
// BlockID 上的唯一索引是并发提交的最终防线：并发插入只有一条能成功
// 不使用软删除，撤销提交后该时段立即回到 Open 状态
type BlockCommit struct {
	ID          uint `gorm:"primarykey"`
	TripID      uint `gorm:"not null;index"`
	BlockID     uint `gorm:"not null;uniqueIndex"`
	ActivityID  uint `gorm:"not null;index"`
	CommittedBy uint `gorm:"not null"`
	CommittedAt time.Time
	Activity    Activity
}

// TableName 保持与提名/投票表一致的命名
func (BlockCommit) TableName() string {
	return "block_commits"
}
