package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/service"
)

type dayRequest struct {
	Date time.Time `json:"date" binding:"required"`
}

type blockRequest struct {
	Label       string     `json:"label" binding:"required"`
	Position    int        `json:"position"`
	VoteOpenAt  *time.Time `json:"vote_open_at"`
	VoteCloseAt *time.Time `json:"vote_close_at"`
}

func blockJSON(block *db.Block) gin.H {
	return gin.H{
		"id":            block.ID,
		"day_id":        block.DayID,
		"label":         block.Label,
		"position":      block.Position,
		"vote_open_at":  block.VoteOpenAt,
		"vote_close_at": block.VoteCloseAt,
	}
}

// AddDay 为行程添加一天
func (a *API) AddDay(c *gin.Context) {
	tripID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行程ID")
		return
	}

	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	var req dayRequest
	if !bindJSON(c, &req, "日期不能为空") {
		return
	}

	day, err := a.schedule.AddDay(tripID, req.Date)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTripNotFound):
			respondError(c, http.StatusNotFound, "行程不存在")
		case errors.Is(err, service.ErrDayExists):
			respondError(c, http.StatusBadRequest, "该日期已存在")
		default:
			respondError(c, http.StatusInternalServerError, "添加日期失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "日期添加成功", "day": gin.H{"id": day.ID, "trip_id": day.TripID, "date": day.Date}})
}

// GetDays 返回行程的日期与时段
func (a *API) GetDays(c *gin.Context) {
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

	response := make([]gin.H, 0, len(days))
	for i := range days {
		blocks := make([]gin.H, 0, len(days[i].Blocks))
		for j := range days[i].Blocks {
			blocks = append(blocks, blockJSON(&days[i].Blocks[j]))
		}
		response = append(response, gin.H{
			"id":     days[i].ID,
			"date":   days[i].Date,
			"blocks": blocks,
		})
	}
	c.JSON(http.StatusOK, gin.H{"days": response})
}

// DeleteDay 删除一天及其时段
func (a *API) DeleteDay(c *gin.Context) {
	dayID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日期ID")
		return
	}

	var day db.Day
	if err := a.db.First(&day, dayID).Error; err != nil {
		respondError(c, http.StatusNotFound, "日期不存在")
		return
	}

	if a.mustOrganizer(c, day.TripID) == nil {
		return
	}

	if err := a.schedule.DeleteDay(dayID); err != nil {
		switch {
		case errors.Is(err, service.ErrDayNotFound):
			respondError(c, http.StatusNotFound, "日期不存在")
		case errors.Is(err, service.ErrBlockCommitted):
			respondError(c, http.StatusBadRequest, "该日期下存在已锁定的时段，请先撤销")
		default:
			respondError(c, http.StatusInternalServerError, "删除日期失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "日期删除成功"})
}

// AddBlock 在指定日期下新建时段
func (a *API) AddBlock(c *gin.Context) {
	dayID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日期ID")
		return
	}

	var day db.Day
	if err := a.db.First(&day, dayID).Error; err != nil {
		respondError(c, http.StatusNotFound, "日期不存在")
		return
	}

	if a.mustOrganizer(c, day.TripID) == nil {
		return
	}

	var req blockRequest
	if !bindJSON(c, &req, "时段名称不能为空") {
		return
	}

	block, err := a.schedule.AddBlock(dayID, service.BlockInput{
		Label:       req.Label,
		Position:    req.Position,
		VoteOpenAt:  req.VoteOpenAt,
		VoteCloseAt: req.VoteCloseAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDayNotFound):
			respondError(c, http.StatusNotFound, "日期不存在")
		case errors.Is(err, service.ErrBlockExists):
			respondError(c, http.StatusBadRequest, "该时段名称已存在")
		case errors.Is(err, service.ErrInvalidVoteWindow):
			respondError(c, http.StatusBadRequest, "投票窗口起止时间不正确")
		default:
			respondError(c, http.StatusInternalServerError, "添加时段失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "时段添加成功", "block": blockJSON(block)})
}

// UpdateBlock 更新时段
func (a *API) UpdateBlock(c *gin.Context) {
	blockID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的时段ID")
		return
	}

	_, tripID, ok := a.blockTrip(c, blockID)
	if !ok {
		return
	}
	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	var req blockRequest
	if !bindJSON(c, &req, "时段名称不能为空") {
		return
	}

	block, err := a.schedule.UpdateBlock(blockID, service.BlockInput{
		Label:       req.Label,
		Position:    req.Position,
		VoteOpenAt:  req.VoteOpenAt,
		VoteCloseAt: req.VoteCloseAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBlockNotFound):
			respondError(c, http.StatusNotFound, "时段不存在")
		case errors.Is(err, service.ErrBlockExists):
			respondError(c, http.StatusBadRequest, "该时段名称已存在")
		case errors.Is(err, service.ErrInvalidVoteWindow):
			respondError(c, http.StatusBadRequest, "投票窗口起止时间不正确")
		default:
			respondError(c, http.StatusInternalServerError, "更新时段失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "时段更新成功", "block": blockJSON(block)})
}

// DeleteBlock 删除时段
func (a *API) DeleteBlock(c *gin.Context) {
	blockID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的时段ID")
		return
	}

	_, tripID, ok := a.blockTrip(c, blockID)
	if !ok {
		return
	}
	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	if err := a.schedule.DeleteBlock(blockID); err != nil {
		switch {
		case errors.Is(err, service.ErrBlockNotFound):
			respondError(c, http.StatusNotFound, "时段不存在")
		case errors.Is(err, service.ErrBlockCommitted):
			respondError(c, http.StatusBadRequest, "时段已有锁定记录，请先撤销")
		default:
			respondError(c, http.StatusInternalServerError, "删除时段失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "时段删除成功"})
}

// ResetBlock 清空时段的提名与选票
func (a *API) ResetBlock(c *gin.Context) {
	blockID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的时段ID")
		return
	}

	_, tripID, ok := a.blockTrip(c, blockID)
	if !ok {
		return
	}
	if a.mustOrganizer(c, tripID) == nil {
		return
	}

	if err := a.schedule.ResetBlock(blockID); err != nil {
		switch {
		case errors.Is(err, service.ErrBlockNotFound):
			respondError(c, http.StatusNotFound, "时段不存在")
		case errors.Is(err, service.ErrBlockCommitted):
			respondError(c, http.StatusBadRequest, "时段已有锁定记录，请先撤销")
		default:
			respondError(c, http.StatusInternalServerError, "重置时段失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "时段已重置"})
}
