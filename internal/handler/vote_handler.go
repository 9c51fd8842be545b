package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/service"
)

type castVoteRequest struct {
	ActivityID uint `json:"activity_id" binding:"required"`
}

// CastVote 为时段内的候选活动投票，重复投票幂等
func (a *API) CastVote(c *gin.Context) {
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

	var req castVoteRequest
	if !bindJSON(c, &req, "活动ID不能为空") {
		return
	}

	vote, err := a.votes.Cast(tripID, blockID, req.ActivityID, member.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBlockNotFound):
			respondError(c, http.StatusNotFound, "时段不存在")
		case errors.Is(err, service.ErrActivityNotFound):
			respondError(c, http.StatusNotFound, "活动不存在")
		case errors.Is(err, service.ErrVotingNotOpen):
			respondError(c, http.StatusBadRequest, "该时段的投票尚未开始")
		case errors.Is(err, service.ErrVotingClosed):
			respondError(c, http.StatusBadRequest, "该时段的投票已截止")
		default:
			respondError(c, http.StatusInternalServerError, "投票失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "投票成功", "vote": gin.H{
		"id":          vote.ID,
		"block_id":    vote.BlockID,
		"activity_id": vote.ActivityID,
		"member_id":   vote.MemberID,
	}})
}

// GetTally 返回时段的计票结果
func (a *API) GetTally(c *gin.Context) {
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

	tally, err := a.votes.Tally(blockID)
	if err != nil {
		if errors.Is(err, service.ErrBlockNotFound) {
			respondError(c, http.StatusNotFound, "时段不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "计票失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tally": tally})
}
