package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/service"
)

type commitRequest struct {
	ManualActivityID uint `json:"manual_activity_id"`
	ConfirmDuplicate bool `json:"confirm_duplicate"`
}

type swapRequest struct {
	BlockID1 uint `json:"block_id_1" binding:"required"`
	BlockID2 uint `json:"block_id_2" binding:"required"`
}

func commitJSON(commit *db.BlockCommit) gin.H {
	return gin.H{
		"id":           commit.ID,
		"trip_id":      commit.TripID,
		"block_id":     commit.BlockID,
		"activity_id":  commit.ActivityID,
		"committed_by": commit.CommittedBy,
		"committed_at": commit.CommittedAt,
		"activity":     activityJSON(&commit.Activity),
	}
}

// CommitBlock 将胜出活动锁定到时段
// 平票与重复警告作为 success:false 的正常响应返回，调用方带参数重试
func (a *API) CommitBlock(c *gin.Context) {
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

	var req commitRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &req, "请求参数不正确") {
			return
		}
	}

	result, err := a.commits.CommitBlock(tripID, blockID, member.ID, service.CommitInput{
		ManualActivityID: req.ManualActivityID,
		ConfirmDuplicate: req.ConfirmDuplicate,
	})
	if err != nil {
		var dup *service.DuplicateForbiddenError
		switch {
		case errors.Is(err, service.ErrNotOrganizer):
			respondError(c, http.StatusForbidden, "锁定操作需要组织者权限")
		case errors.Is(err, service.ErrMemberNotFound):
			respondError(c, http.StatusForbidden, "你不是该行程的成员")
		case errors.Is(err, service.ErrTripNotFound):
			respondError(c, http.StatusNotFound, "行程不存在")
		case errors.Is(err, service.ErrBlockNotFound):
			respondError(c, http.StatusNotFound, "时段不存在")
		case errors.Is(err, service.ErrActivityNotFound):
			respondError(c, http.StatusNotFound, "活动不存在")
		case errors.Is(err, service.ErrAlreadyCommitted):
			respondError(c, http.StatusConflict, "该时段已有锁定记录")
		case errors.Is(err, service.ErrNoVotes):
			respondError(c, http.StatusBadRequest, "该时段还没有任何选票")
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, gin.H{
				"error":    "该活动已被锁定到其他时段，当前策略禁止重复",
				"code":     "duplicate_forbidden",
				"existing": dup.Locations,
			})
		default:
			respondError(c, http.StatusInternalServerError, "锁定失败")
		}
		return
	}

	switch result.Status {
	case service.CommitStatusTieDetected:
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"code":    "tie_detected",
			"message": "出现平票，请手动指定胜出活动",
			"tied":    result.Tied,
			"tally":   result.Tally,
		})
	case service.CommitStatusDuplicateWarning:
		c.JSON(http.StatusOK, gin.H{
			"success":  false,
			"code":     "duplicate_warning",
			"message":  "该活动已被锁定到其他时段，确认后可重复锁定",
			"existing": result.Existing,
			"policy":   result.Policy,
			"tally":    result.Tally,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "锁定成功",
			"commit":  commitJSON(result.Commit),
			"tally":   result.Tally,
			"policy":  result.Policy,
		})
	}
}

// UncommitBlock 撤销时段的锁定
func (a *API) UncommitBlock(c *gin.Context) {
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

	if err := a.commits.UncommitBlock(tripID, blockID, member.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotOrganizer):
			respondError(c, http.StatusForbidden, "撤销操作需要组织者权限")
		case errors.Is(err, service.ErrNotCommitted):
			respondError(c, http.StatusBadRequest, "该时段没有锁定记录")
		default:
			respondError(c, http.StatusInternalServerError, "撤销失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "锁定已撤销"})
}

// GetCommit 返回时段当前的锁定记录
func (a *API) GetCommit(c *gin.Context) {
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

	commit, err := a.commits.GetCommit(blockID)
	if err != nil {
		if errors.Is(err, service.ErrNotCommitted) {
			respondError(c, http.StatusNotFound, "该时段没有锁定记录")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取锁定记录失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"commit": commitJSON(commit)})
}

// ListCommits 返回行程的全部锁定记录
func (a *API) ListCommits(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustMember(c, tripID) == nil {
		return
	}

	commits, err := a.commits.ListCommits(tripID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取锁定列表失败")
		return
	}

	response := make([]gin.H, 0, len(commits))
	for i := range commits {
		response = append(response, commitJSON(&commits[i]))
	}
	c.JSON(http.StatusOK, gin.H{"commits": response})
}

// SwapCommits 交换两个时段的锁定
func (a *API) SwapCommits(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	member := a.mustMember(c, tripID)
	if member == nil {
		return
	}

	var req swapRequest
	if !bindJSON(c, &req, "请提供要交换的两个时段ID") {
		return
	}

	if err := a.commits.SwapCommits(tripID, req.BlockID1, req.BlockID2, member.ID); err != nil {
		var corrupted *service.SwapCorruptedError
		switch {
		case errors.Is(err, service.ErrNotOrganizer):
			respondError(c, http.StatusForbidden, "交换操作需要组织者权限")
		case errors.Is(err, service.ErrSwapSameBlock):
			respondError(c, http.StatusBadRequest, "不能与自身交换")
		case errors.Is(err, service.ErrBothMustBeCommitted):
			respondError(c, http.StatusBadRequest, "两个时段都必须已有锁定记录")
		case errors.As(err, &corrupted):
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "交换失败且状态不一致，需要人工修复",
				"code":       "swap_corrupted",
				"block_id_1": corrupted.BlockID1,
				"block_id_2": corrupted.BlockID2,
			})
		default:
			respondError(c, http.StatusInternalServerError, "交换失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "交换成功"})
}

// GetItinerary 返回行程的汇总视图：日期、时段及已锁定的活动
func (a *API) GetItinerary(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustMember(c, tripID) == nil {
		return
	}

	days, err := a.schedule.ListDays(tripID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取日程失败")
		return
	}

	commits, err := a.commits.ListCommits(tripID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取锁定列表失败")
		return
	}

	committed := make(map[uint]*db.BlockCommit, len(commits))
	for i := range commits {
		committed[commits[i].BlockID] = &commits[i]
	}

	response := make([]gin.H, 0, len(days))
	for i := range days {
		blocks := make([]gin.H, 0, len(days[i].Blocks))
		for j := range days[i].Blocks {
			block := &days[i].Blocks[j]
			entry := gin.H{
				"id":        block.ID,
				"label":     block.Label,
				"position":  block.Position,
				"committed": false,
			}
			if commit, ok := committed[block.ID]; ok {
				entry["committed"] = true
				entry["commit"] = commitJSON(commit)
			}
			blocks = append(blocks, entry)
		}
		response = append(response, gin.H{
			"id":     days[i].ID,
			"date":   days[i].Date,
			"blocks": blocks,
		})
	}

	c.JSON(http.StatusOK, gin.H{"itinerary": response})
}
