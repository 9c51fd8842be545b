package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	trips      *service.TripService
	schedule   *service.ScheduleService
	activities *service.ActivityService
	votes      *service.VoteService
	commits    *service.CommitService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB) *API {
	voteService := service.NewVoteService(gdb)

	return &API{
		db:         gdb,
		trips:      service.NewTripService(gdb),
		schedule:   service.NewScheduleService(gdb),
		activities: service.NewActivityService(gdb),
		votes:      voteService,
		commits:    service.NewCommitService(gdb, voteService),
	}
}

// mustMember 解析当前登录用户在行程内的成员身份，失败时已写入响应
func (a *API) mustMember(c *gin.Context, tripID uint) *db.TripMember {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return nil
	}

	member, err := a.trips.Member(tripID, userID)
	if err != nil {
		respondError(c, http.StatusForbidden, "你不是该行程的成员")
		return nil
	}
	return member
}

// mustOrganizer 同 mustMember，但额外要求组织者角色
func (a *API) mustOrganizer(c *gin.Context, tripID uint) *db.TripMember {
	member := a.mustMember(c, tripID)
	if member == nil {
		return nil
	}
	if member.Role != db.RoleOrganizer {
		respondError(c, http.StatusForbidden, "该操作需要组织者权限")
		return nil
	}
	return member
}

// blockTrip 定位时段并返回其所属行程 ID，失败时已写入响应
func (a *API) blockTrip(c *gin.Context, blockID uint) (*db.Block, uint, bool) {
	block, tripID, err := a.schedule.Block(blockID)
	if err != nil {
		respondError(c, http.StatusNotFound, "时段不存在")
		return nil, 0, false
	}
	return block, tripID, true
}
