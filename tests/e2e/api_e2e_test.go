package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
	"github.com/tripboard/internal/handler"
	"github.com/tripboard/internal/router"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler   http.Handler
	organizer httpClient
	ana       httpClient
	ben       httpClient
	baseURL   string

	tripID     uint
	shareCode  string
	blockIDs   []uint
	activities []uint
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler) *localClient {
	var jar http.CookieJar
	if j, err := cookiejar.New(nil); err == nil {
		jar = j
	}
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

// TestE2E_VotingAndCommitFlow 走一遍完整协作流程：
// 注册三人，创建行程并加入，排日程与候选活动，投票出现平票，
// 组织者手动锁定，再触发重复警告并确认，交换两个时段，最后撤销。
func TestE2E_VotingAndCommitFlow(t *testing.T) {
	suite := newE2ESuite(t)

	t.Run("signup and trip setup", suite.testTripSetup)
	t.Run("schedule and activities", suite.testScheduleAndActivities)
	t.Run("voting and tally", suite.testVoting)
	t.Run("commit with tie and duplicate", suite.testCommitFlow)
	t.Run("swap and itinerary", suite.testSwapAndItinerary)
	t.Run("uncommit", suite.testUncommit)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.User{},
		&db.Trip{},
		&db.TripMember{},
		&db.Day{},
		&db.Block{},
		&db.Activity{},
		&db.BlockProposal{},
		&db.Vote{},
		&db.BlockCommit{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	db.DB = gdb

	api := handler.NewAPI(gdb)
	engine := router.SetupRouter(api, "test-session-secret")

	return &e2eSuite{
		handler:   engine,
		organizer: newLocalClient(engine),
		ana:       newLocalClient(engine),
		ben:       newLocalClient(engine),
		baseURL:   "https://example.test",
	}
}

func (s *e2eSuite) testTripSetup(t *testing.T) {
	for _, signup := range []struct {
		client   httpClient
		username string
	}{
		{s.organizer, "e2e_org"},
		{s.ana, "e2e_ana"},
		{s.ben, "e2e_ben"},
	} {
		resp := s.mustRequestJSON(t, signup.client, http.MethodPost, "/api/register", map[string]interface{}{
			"username": signup.username,
			"password": "e2e-secret",
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("register %s expected 200, got %d: %s", signup.username, resp.StatusCode, readBody(t, resp))
		}
	}

	resp := s.mustRequestJSON(t, s.organizer, http.MethodPost, "/api/trips", map[string]interface{}{
		"name":             "京都红叶行",
		"destination":      "京都",
		"currency":         "JPY",
		"duplicate_policy": db.PolicySoftBlock,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create trip expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var created struct {
		Trip struct {
			ID        uint   `json:"id"`
			ShareCode string `json:"share_code"`
		} `json:"trip"`
	}
	decodeJSON(t, resp, &created)
	if created.Trip.ID == 0 || created.Trip.ShareCode == "" {
		t.Fatalf("unexpected trip payload: %+v", created)
	}
	s.tripID = created.Trip.ID
	s.shareCode = created.Trip.ShareCode

	for _, member := range []struct {
		client httpClient
		name   string
	}{
		{s.ana, "Ana"},
		{s.ben, "Ben"},
	} {
		resp := s.mustRequestJSON(t, member.client, http.MethodPost, "/api/trips/"+idStr(s.tripID)+"/join", map[string]interface{}{
			"share_code":   s.shareCode,
			"display_name": member.name,
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join as %s expected 200, got %d: %s", member.name, resp.StatusCode, readBody(t, resp))
		}
	}

	resp = s.mustRequest(t, s.ana, http.MethodGet, "/api/trips/"+idStr(s.tripID)+"/members", nil)
	defer resp.Body.Close()
	var members struct {
		Members []struct {
			Role string `json:"role"`
		} `json:"members"`
	}
	decodeJSON(t, resp, &members)
	if len(members.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members.Members))
	}
}

func (s *e2eSuite) testScheduleAndActivities(t *testing.T) {
	resp := s.mustRequestJSON(t, s.organizer, http.MethodPost, "/api/trips/"+idStr(s.tripID)+"/days", map[string]interface{}{
		"date": time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add day expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var dayCreated struct {
		Day struct {
			ID uint `json:"id"`
		} `json:"day"`
	}
	decodeJSON(t, resp, &dayCreated)

	for i, label := range []string{"上午", "下午"} {
		resp := s.mustRequestJSON(t, s.organizer, http.MethodPost, "/api/days/"+idStr(dayCreated.Day.ID)+"/blocks", map[string]interface{}{
			"label":    label,
			"position": i,
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("add block %s expected 200, got %d: %s", label, resp.StatusCode, readBody(t, resp))
		}
		var blockCreated struct {
			Block struct {
				ID uint `json:"id"`
			} `json:"block"`
		}
		decodeJSON(t, resp, &blockCreated)
		s.blockIDs = append(s.blockIDs, blockCreated.Block.ID)
	}

	for _, title := range []string{"清水寺", "岚山竹林", "锦市场"} {
		resp := s.mustRequestJSON(t, s.ana, http.MethodPost, "/api/trips/"+idStr(s.tripID)+"/activities", map[string]interface{}{
			"title":    title,
			"category": "观光",
			"notes":    "**" + title + "** 值得一去。",
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("create activity %s expected 200, got %d: %s", title, resp.StatusCode, readBody(t, resp))
		}
		var activityCreated struct {
			Activity struct {
				ID uint `json:"id"`
			} `json:"activity"`
		}
		decodeJSON(t, resp, &activityCreated)
		s.activities = append(s.activities, activityCreated.Activity.ID)
	}

	// 前两个活动提名到第一个时段
	for _, activityID := range s.activities[:2] {
		resp := s.mustRequestJSON(t, s.ana, http.MethodPost, "/api/blocks/"+idStr(s.blockIDs[0])+"/proposals", map[string]interface{}{
			"activity_id": activityID,
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("propose expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
		}
	}

	resp = s.mustRequest(t, s.ben, http.MethodGet, "/api/blocks/"+idStr(s.blockIDs[0])+"/proposals", nil)
	defer resp.Body.Close()
	var proposals struct {
		Proposals []struct {
			ID uint `json:"id"`
		} `json:"proposals"`
	}
	decodeJSON(t, resp, &proposals)
	if len(proposals.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(proposals.Proposals))
	}
}

func (s *e2eSuite) testVoting(t *testing.T) {
	// 组织者与 Ana 投清水寺，Ana 与 Ben 投岚山，形成 2:2 平票
	votes := []struct {
		client     httpClient
		activityID uint
	}{
		{s.organizer, s.activities[0]},
		{s.ana, s.activities[0]},
		{s.ana, s.activities[1]},
		{s.ben, s.activities[1]},
	}
	for _, vote := range votes {
		resp := s.mustRequestJSON(t, vote.client, http.MethodPost, "/api/blocks/"+idStr(s.blockIDs[0])+"/votes", map[string]interface{}{
			"activity_id": vote.activityID,
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("cast vote expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
		}
	}

	resp := s.mustRequest(t, s.ben, http.MethodGet, "/api/blocks/"+idStr(s.blockIDs[0])+"/tally", nil)
	defer resp.Body.Close()
	var tallyResp struct {
		Tally struct {
			TotalVotes     int `json:"total_votes"`
			DistinctVoters int `json:"distinct_voters"`
			Entries        []struct {
				ActivityID uint  `json:"activity_id"`
				Count      int64 `json:"count"`
			} `json:"entries"`
		} `json:"tally"`
	}
	decodeJSON(t, resp, &tallyResp)
	if tallyResp.Tally.TotalVotes != 4 || tallyResp.Tally.DistinctVoters != 3 {
		t.Fatalf("unexpected tally totals: %+v", tallyResp.Tally)
	}
	if len(tallyResp.Tally.Entries) != 2 {
		t.Fatalf("expected 2 tally entries, got %d", len(tallyResp.Tally.Entries))
	}
}

func (s *e2eSuite) testCommitFlow(t *testing.T) {
	commitPath := "/api/blocks/" + idStr(s.blockIDs[0]) + "/commit"

	// 自动锁定撞上平票
	resp := s.mustRequestJSON(t, s.organizer, http.MethodPost, commitPath, map[string]interface{}{})
	defer resp.Body.Close()
	var tie struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Tied    []struct {
			ActivityID uint `json:"activity_id"`
		} `json:"tied"`
	}
	decodeJSON(t, resp, &tie)
	if tie.Success || tie.Code != "tie_detected" || len(tie.Tied) != 2 {
		t.Fatalf("expected tie_detected with 2 entries, got %+v", tie)
	}

	// 协作者无权锁定
	resp = s.mustRequestJSON(t, s.ana, http.MethodPost, commitPath, map[string]interface{}{
		"manual_activity_id": s.activities[0],
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("collaborator commit expected 403, got %d", resp.StatusCode)
	}

	// 组织者手动指定清水寺
	resp = s.mustRequestJSON(t, s.organizer, http.MethodPost, commitPath, map[string]interface{}{
		"manual_activity_id": s.activities[0],
	})
	defer resp.Body.Close()
	var committed struct {
		Success bool `json:"success"`
		Commit  struct {
			ActivityID uint `json:"activity_id"`
		} `json:"commit"`
	}
	decodeJSON(t, resp, &committed)
	if !committed.Success || committed.Commit.ActivityID != s.activities[0] {
		t.Fatalf("expected manual commit of activity %d, got %+v", s.activities[0], committed)
	}

	// 同一活动锁到第二个时段先收到软警告
	secondPath := "/api/blocks/" + idStr(s.blockIDs[1]) + "/commit"
	resp = s.mustRequestJSON(t, s.organizer, http.MethodPost, secondPath, map[string]interface{}{
		"manual_activity_id": s.activities[0],
	})
	defer resp.Body.Close()
	var warning struct {
		Success  bool   `json:"success"`
		Code     string `json:"code"`
		Existing []struct {
			BlockID uint `json:"block_id"`
		} `json:"existing"`
	}
	decodeJSON(t, resp, &warning)
	if warning.Success || warning.Code != "duplicate_warning" {
		t.Fatalf("expected duplicate_warning, got %+v", warning)
	}
	if len(warning.Existing) != 1 || warning.Existing[0].BlockID != s.blockIDs[0] {
		t.Fatalf("unexpected existing locations: %+v", warning.Existing)
	}

	// 确认后锁定成功
	resp = s.mustRequestJSON(t, s.organizer, http.MethodPost, secondPath, map[string]interface{}{
		"manual_activity_id": s.activities[0],
		"confirm_duplicate":  true,
	})
	defer resp.Body.Close()
	var confirmed struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, resp, &confirmed)
	if !confirmed.Success {
		t.Fatalf("expected confirmed commit to succeed")
	}

	// 重复锁定同一时段返回 409
	resp = s.mustRequestJSON(t, s.organizer, http.MethodPost, commitPath, map[string]interface{}{
		"manual_activity_id": s.activities[1],
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("recommit expected 409, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testSwapAndItinerary(t *testing.T) {
	// 把第二个时段换成岚山再交换，验证交换语义
	resp := s.mustRequest(t, s.organizer, http.MethodDelete, "/api/blocks/"+idStr(s.blockIDs[1])+"/commit", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("uncommit block2 expected 200, got %d", resp.StatusCode)
	}
	resp = s.mustRequestJSON(t, s.organizer, http.MethodPost, "/api/blocks/"+idStr(s.blockIDs[1])+"/commit", map[string]interface{}{
		"manual_activity_id": s.activities[1],
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("commit block2 expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	resp = s.mustRequestJSON(t, s.organizer, http.MethodPost, "/api/trips/"+idStr(s.tripID)+"/commits/swap", map[string]interface{}{
		"block_id_1": s.blockIDs[0],
		"block_id_2": s.blockIDs[1],
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("swap expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	resp = s.mustRequest(t, s.ben, http.MethodGet, "/api/trips/"+idStr(s.tripID)+"/itinerary", nil)
	defer resp.Body.Close()
	var view struct {
		Itinerary []struct {
			Blocks []struct {
				ID        uint `json:"id"`
				Committed bool `json:"committed"`
				Commit    struct {
					ActivityID uint `json:"activity_id"`
				} `json:"commit"`
			} `json:"blocks"`
		} `json:"itinerary"`
	}
	decodeJSON(t, resp, &view)
	if len(view.Itinerary) != 1 || len(view.Itinerary[0].Blocks) != 2 {
		t.Fatalf("unexpected itinerary shape: %+v", view)
	}
	for _, block := range view.Itinerary[0].Blocks {
		if !block.Committed {
			t.Fatalf("expected every block committed, got %+v", block)
		}
		switch block.ID {
		case s.blockIDs[0]:
			if block.Commit.ActivityID != s.activities[1] {
				t.Fatalf("expected block1 to hold activity B after swap, got %d", block.Commit.ActivityID)
			}
		case s.blockIDs[1]:
			if block.Commit.ActivityID != s.activities[0] {
				t.Fatalf("expected block2 to hold activity A after swap, got %d", block.Commit.ActivityID)
			}
		}
	}
}

func (s *e2eSuite) testUncommit(t *testing.T) {
	path := "/api/blocks/" + idStr(s.blockIDs[0]) + "/commit"

	resp := s.mustRequest(t, s.organizer, http.MethodDelete, path, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("uncommit expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	resp = s.mustRequest(t, s.organizer, http.MethodGet, path, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after uncommit, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.organizer, http.MethodDelete, path, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second uncommit expected 400, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) mustRequest(t *testing.T, client httpClient, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func (s *e2eSuite) mustRequestJSON(t *testing.T, client httpClient, method, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req, err := http.NewRequest(method, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("failed to decode json: %v\nbody=%s", err, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(data)
}

func idStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
