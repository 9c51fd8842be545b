package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/service"
)

type tripRequest struct {
	Name            string     `json:"name" binding:"required"`
	Destination     string     `json:"destination"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	Currency        string     `json:"currency"`
	DuplicatePolicy string     `json:"duplicate_policy"`
}

type joinTripRequest struct {
	ShareCode   string `json:"share_code" binding:"required"`
	DisplayName string `json:"display_name"`
}

type memberRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func tripJSON(trip *db.Trip, includeShareCode bool) gin.H {
	payload := gin.H{
		"id":               trip.ID,
		"name":             trip.Name,
		"destination":      trip.Destination,
		"start_date":       trip.StartDate,
		"end_date":         trip.EndDate,
		"currency":         trip.Currency,
		"duplicate_policy": trip.DuplicatePolicy,
	}
	if includeShareCode {
		payload["share_code"] = trip.ShareCode
	}
	return payload
}

func memberJSON(member *db.TripMember) gin.H {
	return gin.H{
		"id":           member.ID,
		"trip_id":      member.TripID,
		"user_id":      member.UserID,
		"role":         member.Role,
		"display_name": member.DisplayName,
	}
}

// CreateTrip 创建行程，创建者自动成为组织者
func (a *API) CreateTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var req tripRequest
	if !bindJSON(c, &req, "行程名称不能为空") {
		return
	}

	trip, err := a.trips.Create(userID, service.TripInput{
		Name:            req.Name,
		Destination:     req.Destination,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Currency:        req.Currency,
		DuplicatePolicy: req.DuplicatePolicy,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPolicy) {
			respondError(c, http.StatusBadRequest, "无效的重复活动策略")
			return
		}
		respondError(c, http.StatusInternalServerError, "创建行程失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "行程创建成功", "trip": tripJSON(trip, true)})
}

// GetTrips 返回当前用户参与的行程列表
func (a *API) GetTrips(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	trips, err := a.trips.List(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取行程列表失败")
		return
	}

	response := make([]gin.H, 0, len(trips))
	for i := range trips {
		response = append(response, tripJSON(&trips[i], false))
	}
	c.JSON(http.StatusOK, gin.H{"trips": response})
}

// GetTrip 返回行程详情，组织者可见邀请口令
func (a *API) GetTrip(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	member := a.mustMember(c, tripID)
	if member == nil {
		return
	}

	trip, err := a.trips.Get(tripID)
	if err != nil {
		respondError(c, http.StatusNotFound, "行程不存在")
		return
	}

	c.JSON(http.StatusOK, gin.H{"trip": tripJSON(trip, member.Role == db.RoleOrganizer)})
}

// UpdateTrip 更新行程信息；重复活动策略在已有提交后锁定
func (a *API) UpdateTrip(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	var req tripRequest
	if !bindJSON(c, &req, "行程名称不能为空") {
		return
	}

	trip, err := a.trips.Update(tripID, service.TripInput{
		Name:            req.Name,
		Destination:     req.Destination,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Currency:        req.Currency,
		DuplicatePolicy: req.DuplicatePolicy,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTripNotFound):
			respondError(c, http.StatusNotFound, "行程不存在")
		case errors.Is(err, service.ErrInvalidPolicy):
			respondError(c, http.StatusBadRequest, "无效的重复活动策略")
		case errors.Is(err, service.ErrPolicyLocked):
			respondError(c, http.StatusBadRequest, "行程已有锁定记录，重复活动策略不可再修改")
		default:
			respondError(c, http.StatusInternalServerError, "更新行程失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "行程更新成功", "trip": tripJSON(trip, true)})
}

// DeleteTrip 删除行程及全部附属数据
func (a *API) DeleteTrip(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	if err := a.trips.Delete(tripID); err != nil {
		if errors.Is(err, service.ErrTripNotFound) {
			respondError(c, http.StatusNotFound, "行程不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "删除行程失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "行程删除成功"})
}

// JoinTrip 通过邀请口令加入行程
func (a *API) JoinTrip(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var req joinTripRequest
	if !bindJSON(c, &req, "邀请口令不能为空") {
		return
	}

	member, err := a.trips.Join(tripID, userID, req.ShareCode, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTripNotFound):
			respondError(c, http.StatusNotFound, "行程不存在")
		case errors.Is(err, service.ErrShareCodeMismatch):
			respondError(c, http.StatusForbidden, "邀请口令不正确")
		case errors.Is(err, service.ErrAlreadyMember):
			respondError(c, http.StatusBadRequest, "你已经是该行程的成员")
		default:
			respondError(c, http.StatusInternalServerError, "加入行程失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "加入行程成功", "member": memberJSON(member)})
}

// GetMembers 返回行程的成员列表
func (a *API) GetMembers(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustMember(c, tripID) == nil {
		return
	}

	members, err := a.trips.Members(tripID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取成员列表失败")
		return
	}

	response := make([]gin.H, 0, len(members))
	for i := range members {
		response = append(response, memberJSON(&members[i]))
	}
	c.JSON(http.StatusOK, gin.H{"members": response})
}

// UpdateMemberRole 调整成员角色
func (a *API) UpdateMemberRole(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	memberID, err := parseUintParam(c, "memberID")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的成员ID")
		return
	}

	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	var req memberRoleRequest
	if !bindJSON(c, &req, "角色不能为空") {
		return
	}

	member, err := a.trips.UpdateMemberRole(tripID, memberID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMemberNotFound):
			respondError(c, http.StatusNotFound, "成员不存在")
		case errors.Is(err, service.ErrInvalidRole):
			respondError(c, http.StatusBadRequest, "无效的成员角色")
		case errors.Is(err, service.ErrLastOrganizer):
			respondError(c, http.StatusBadRequest, "行程至少需要一名组织者")
		default:
			respondError(c, http.StatusInternalServerError, "更新成员角色失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "成员角色更新成功", "member": memberJSON(member)})
}
