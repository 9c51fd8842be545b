package db

import "time"

// BlockProposal 表示某活动被提名为某时段的候选
// Block + Activity 唯一；不使用软删除，soft_block 清理后同一组合可被重新提名
type BlockProposal struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	TripID     uint `gorm:"not null;index"`
	BlockID    uint `gorm:"not null;uniqueIndex:idx_block_proposals_block_activity"`
	ActivityID uint `gorm:"not null;uniqueIndex:idx_block_proposals_block_activity"`
	CreatedBy  uint `gorm:"not null"`
	Activity   Activity
}

// TableName 保持与投票/提交表一致的命名
func (BlockProposal) TableName() string {
	return "block_proposals"
}
