package db

import "gorm.io/gorm"

// Activity 定义了活动模型
// 活动属于行程而非时段，同一活动可以被提名到多个时段
// Notes 为 Markdown 文本，读取时渲染为净化后的 HTML
type Activity struct {
	gorm.Model
	TripID       uint   `gorm:"not null;index"`
	Title        string `gorm:"not null"`
	Category     string
	CostAmount   float64
	CostCurrency string
	DurationMin  int
	Location     string
	Notes        string
	CreatedBy    uint
}
