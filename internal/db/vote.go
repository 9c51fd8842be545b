package db

import "time"

// Vote 记录一张选票
// Block + Activity + Member 唯一索引保证重复投票幂等：冲突时不产生新行也不报错
// 同一成员可以为同一时段内的多个活动分别持票（近似赞同制投票）
type Vote struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	TripID     uint `gorm:"not null;index"`
	BlockID    uint `gorm:"not null;uniqueIndex:idx_votes_block_activity_member"`
	ActivityID uint `gorm:"not null;uniqueIndex:idx_votes_block_activity_member"`
	MemberID   uint `gorm:"not null;uniqueIndex:idx_votes_block_activity_member"`
}
