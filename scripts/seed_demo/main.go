package main

import (
	"fmt"
	"log"
	"time"

	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// 生成一份演示行程：三名成员、两天日程、若干候选活动与选票，
// 便于本地调试投票与锁定流程。
func main() {
	if err := db.Init(""); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	users := make([]db.User, 0, 3)
	for _, name := range []string{"demo_org", "demo_ana", "demo_ben"} {
		hashed, err := bcrypt.GenerateFromPassword([]byte("demo123"), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("密码加密失败:", err)
		}
		user := db.User{Username: name, Password: string(hashed)}
		if err := db.DB.Create(&user).Error; err != nil {
			log.Fatal("创建用户失败:", err)
		}
		users = append(users, user)
	}

	trips := service.NewTripService(db.DB)
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 0, 1)
	trip, err := trips.Create(users[0].ID, service.TripInput{
		Name:        "京都红叶行",
		Destination: "京都",
		StartDate:   &start,
		EndDate:     &end,
		Currency:    "JPY",
	})
	if err != nil {
		log.Fatal("创建行程失败:", err)
	}

	members := []*db.TripMember{}
	organizer, err := trips.Member(trip.ID, users[0].ID)
	if err != nil {
		log.Fatal("解析组织者失败:", err)
	}
	members = append(members, organizer)
	for _, user := range users[1:] {
		member, err := trips.Join(trip.ID, user.ID, trip.ShareCode, "")
		if err != nil {
			log.Fatal("加入行程失败:", err)
		}
		members = append(members, member)
	}

	schedule := service.NewScheduleService(db.DB)
	blocks := []*db.Block{}
	for dayOffset := 0; dayOffset < 2; dayOffset++ {
		day, err := schedule.AddDay(trip.ID, start.AddDate(0, 0, dayOffset))
		if err != nil {
			log.Fatal("添加日期失败:", err)
		}
		for i, label := range []string{"上午", "下午"} {
			block, err := schedule.AddBlock(day.ID, service.BlockInput{Label: label, Position: i})
			if err != nil {
				log.Fatal("添加时段失败:", err)
			}
			blocks = append(blocks, block)
		}
	}

	activities := service.NewActivityService(db.DB)
	titles := []string{"清水寺", "岚山竹林", "锦市场", "伏见稻荷大社"}
	created := []*db.Activity{}
	for _, title := range titles {
		activity, err := activities.Create(trip.ID, organizer.ID, service.ActivityInput{
			Title:        title,
			Category:     "观光",
			CostCurrency: "JPY",
			Notes:        fmt.Sprintf("**%s** 的备注，支持 Markdown。", title),
		})
		if err != nil {
			log.Fatal("创建活动失败:", err)
		}
		created = append(created, activity)
	}

	votes := service.NewVoteService(db.DB)
	for _, activity := range created[:3] {
		if _, err := activities.Propose(blocks[0].ID, activity.ID, organizer); err != nil {
			log.Fatal("提名失败:", err)
		}
	}
	// 留一个平票局面：前两个活动各得两票
	for _, member := range members[:2] {
		if _, err := votes.Cast(trip.ID, blocks[0].ID, created[0].ID, member.ID); err != nil {
			log.Fatal("投票失败:", err)
		}
	}
	for _, member := range members[1:] {
		if _, err := votes.Cast(trip.ID, blocks[0].ID, created[1].ID, member.ID); err != nil {
			log.Fatal("投票失败:", err)
		}
	}

	fmt.Println("演示数据生成完成")
	fmt.Printf("行程: %s (ID=%d)\n", trip.Name, trip.ID)
	fmt.Printf("邀请口令: %s\n", trip.ShareCode)
	fmt.Println("账号: demo_org / demo_ana / demo_ben，密码均为 demo123")
}
