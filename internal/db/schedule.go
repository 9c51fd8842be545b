package db

import (
	"time"

	"gorm.io/gorm"
)

// Day 表示行程中的一天，Trip + Date 唯一
type Day struct {
	gorm.Model
	TripID uint      `gorm:"not null;uniqueIndex:idx_days_trip_date"`
	Date   time.Time `gorm:"not null;uniqueIndex:idx_days_trip_date"`
	Blocks []Block
}

// Block 表示一天中的一个时段，Day + Label 唯一
// VoteOpenAt/VoteCloseAt 为可选的投票窗口，投票时按服务器时间同步校验
// 一个时段同一时刻最多持有一条 BlockCommit，这是整个子系统的核心不变式
type Block struct {
	gorm.Model
	DayID       uint   `gorm:"not null;uniqueIndex:idx_blocks_day_label"`
	Label       string `gorm:"not null;uniqueIndex:idx_blocks_day_label"`
	Position    int    `gorm:"not null;default:0"`
	VoteOpenAt  *time.Time
	VoteCloseAt *time.Time
}
