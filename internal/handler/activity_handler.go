package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/service"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

type activityRequest struct {
	Title        string  `json:"title" binding:"required"`
	Category     string  `json:"category"`
	CostAmount   float64 `json:"cost_amount"`
	CostCurrency string  `json:"cost_currency"`
	DurationMin  int     `json:"duration_min"`
	Location     string  `json:"location"`
	Notes        string  `json:"notes"`
}

type proposalRequest struct {
	ActivityID uint `json:"activity_id" binding:"required"`
}

// renderNotes 将活动备注的 Markdown 渲染为净化后的 HTML
func renderNotes(notes string) string {
	if notes == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(notes), &buf); err != nil {
		return ""
	}
	return sanitizer.Sanitize(buf.String())
}

func activityJSON(activity *db.Activity) gin.H {
	return gin.H{
		"id":            activity.ID,
		"trip_id":       activity.TripID,
		"title":         activity.Title,
		"category":      activity.Category,
		"cost_amount":   activity.CostAmount,
		"cost_currency": activity.CostCurrency,
		"duration_min":  activity.DurationMin,
		"location":      activity.Location,
		"notes":         activity.Notes,
		"notes_html":    renderNotes(activity.Notes),
	}
}

func activityInput(req activityRequest) service.ActivityInput {
	return service.ActivityInput{
		Title:        req.Title,
		Category:     req.Category,
		CostAmount:   req.CostAmount,
		CostCurrency: req.CostCurrency,
		DurationMin:  req.DurationMin,
		Location:     req.Location,
		Notes:        req.Notes,
	}
}

// CreateActivity 新建活动
func (a *API) CreateActivity(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	member := a.mustMember(c, tripID)
	if member == nil {
		return
	}

	var req activityRequest
	if !bindJSON(c, &req, "活动标题不能为空") {
		return
	}

	activity, err := a.activities.Create(tripID, member.ID, activityInput(req))
	if err != nil {
		if errors.Is(err, service.ErrTripNotFound) {
			respondError(c, http.StatusNotFound, "行程不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "创建活动失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "活动创建成功", "activity": activityJSON(activity)})
}

// GetActivities 返回行程的活动列表
func (a *API) GetActivities(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustMember(c, tripID) == nil {
		return
	}

	activities, err := a.activities.List(tripID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取活动列表失败")
		return
	}

	response := make([]gin.H, 0, len(activities))
	for i := range activities {
		response = append(response, activityJSON(&activities[i]))
	}
	c.JSON(http.StatusOK, gin.H{"activities": response})
}

// GetActivity 返回活动详情
func (a *API) GetActivity(c *gin.Context) {
	activityID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的活动ID")
		return
	}

	activity, err := a.activities.Get(activityID)
	if err != nil {
		respondError(c, http.StatusNotFound, "活动不存在")
		return
	}

	if a.mustMember(c, activity.TripID) == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": activityJSON(activity)})
}

// UpdateActivity 更新活动
func (a *API) UpdateActivity(c *gin.Context) {
	activityID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的活动ID")
		return
	}

	existing, err := a.activities.Get(activityID)
	if err != nil {
		respondError(c, http.StatusNotFound, "活动不存在")
		return
	}

	if a.mustMember(c, existing.TripID) == nil {
		return
	}

	var req activityRequest
	if !bindJSON(c, &req, "活动标题不能为空") {
		return
	}

	activity, err := a.activities.Update(activityID, activityInput(req))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "更新活动失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "活动更新成功", "activity": activityJSON(activity)})
}

// DeleteActivity 删除活动
func (a *API) DeleteActivity(c *gin.Context) {
	activityID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的活动ID")
		return
	}

	existing, err := a.activities.Get(activityID)
	if err != nil {
		respondError(c, http.StatusNotFound, "活动不存在")
		return
	}

	if a.mustOrganizer(c, existing.TripID) == nil {
		return
	}

	if err := a.activities.Delete(activityID); err != nil {
		if errors.Is(err, service.ErrActivityCommitted) {
			respondError(c, http.StatusBadRequest, "活动已被锁定到时段，请先撤销")
			return
		}
		respondError(c, http.StatusInternalServerError, "删除活动失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "活动删除成功"})
}

// CreateProposal 将活动提名为时段候选
func (a *API) CreateProposal(c *gin.Context) {
	blockID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的时段ID")
		return
	}

	_, tripID, ok := a.blockTrip(c, blockID)
	if !ok {
		return
	}
	member := a.mustMember(c, tripID)
	if member == nil {
		return
	}

	var req proposalRequest
	if !bindJSON(c, &req, "活动ID不能为空") {
		return
	}

	proposal, err := a.activities.Propose(blockID, req.ActivityID, member)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBlockNotFound):
			respondError(c, http.StatusNotFound, "时段不存在")
		case errors.Is(err, service.ErrActivityNotFound):
			respondError(c, http.StatusNotFound, "活动不存在")
		case errors.Is(err, service.ErrProposalExists):
			respondError(c, http.StatusBadRequest, "该活动已被提名到此时段")
		default:
			respondError(c, http.StatusInternalServerError, "提名失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "提名成功", "proposal": gin.H{
		"id":          proposal.ID,
		"block_id":    proposal.BlockID,
		"activity_id": proposal.ActivityID,
		"created_by":  proposal.CreatedBy,
		"activity":    activityJSON(&proposal.Activity),
	}})
}

// GetProposals 返回时段的候选列表
func (a *API) GetProposals(c *gin.Context) {
	blockID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的时段ID")
		return
	}

	_, tripID, ok := a.blockTrip(c, blockID)
	if !ok {
		return
	}
	if a.mustMember(c, tripID) == nil {
		return
	}

	proposals, err := a.activities.Proposals(blockID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取候选列表失败")
		return
	}

	response := make([]gin.H, 0, len(proposals))
	for i := range proposals {
		response = append(response, gin.H{
			"id":          proposals[i].ID,
			"block_id":    proposals[i].BlockID,
			"activity_id": proposals[i].ActivityID,
			"created_by":  proposals[i].CreatedBy,
			"activity":    activityJSON(&proposals[i].Activity),
		})
	}
	c.JSON(http.StatusOK, gin.H{"proposals": response})
}

// WithdrawProposal 撤回提名
func (a *API) WithdrawProposal(c *gin.Context) {
	proposalID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的提名ID")
		return
	}

	var proposal db.BlockProposal
	if err := a.db.First(&proposal, proposalID).Error; err != nil {
		respondError(c, http.StatusNotFound, "提名不存在")
		return
	}

	member := a.mustMember(c, proposal.TripID)
	if member == nil {
		return
	}

	if err := a.activities.Withdraw(proposalID, member); err != nil {
		switch {
		case errors.Is(err, service.ErrProposalNotFound):
			respondError(c, http.StatusNotFound, "提名不存在")
		case errors.Is(err, service.ErrNotOrganizer):
			respondError(c, http.StatusForbidden, "只有提名者本人或组织者可以撤回提名")
		default:
			respondError(c, http.StatusInternalServerError, "撤回提名失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "提名已撤回"})
}
