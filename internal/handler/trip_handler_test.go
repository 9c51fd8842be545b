package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
)

func TestCreateAndJoinTripFlow(t *testing.T) {
	_, r, cleanup := setupHandlerTest(t)
	defer cleanup()

	ownerCookie := signup(t, r, "owner")
	guestCookie := signup(t, r, "guest")

	w := doJSON(t, r, http.MethodPost, "/api/trips", gin.H{"name": "东京五日", "destination": "东京"}, ownerCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("create trip failed with %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	trip := body["trip"].(map[string]any)
	tripID := uint(trip["id"].(float64))
	shareCode, ok := trip["share_code"].(string)
	if !ok || shareCode == "" {
		t.Fatalf("expected share code in create response, got %v", trip)
	}

	// 口令错误时拒绝加入
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/trips/%d/join", tripID),
		gin.H{"share_code": "wrong"}, guestCookie)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad share code, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/trips/%d/join", tripID),
		gin.H{"share_code": shareCode, "display_name": "小王"}, guestCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("join failed with %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	member := body["member"].(map[string]any)
	if member["role"] != db.RoleCollaborator {
		t.Fatalf("expected collaborator role, got %v", member)
	}

	// 协作者看不到邀请口令
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/trips/%d", tripID), nil, guestCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("get trip failed with %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	trip = body["trip"].(map[string]any)
	if _, present := trip["share_code"]; present {
		t.Fatalf("share code must be hidden from collaborators: %v", trip)
	}

	// 组织者可以看到
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/trips/%d", tripID), nil, ownerCookie)
	body = decodeBody(t, w)
	trip = body["trip"].(map[string]any)
	if trip["share_code"] != shareCode {
		t.Fatalf("expected share code for organizer, got %v", trip)
	}

	// 成员列表对双方可见
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/trips/%d/members", tripID), nil, guestCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("get members failed with %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	members := body["members"].([]any)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestUpdateTripPolicyLockedViaAPI(t *testing.T) {
	_, r, cleanup := setupHandlerTest(t)
	defer cleanup()

	fixture := seedHandlerFixture(t, r, db.PolicySoftBlock)

	w := doJSON(t, r, http.MethodPost, commitPath(fixture.block1.ID),
		gin.H{"manual_activity_id": fixture.activities[0].ID}, fixture.organizerCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("commit failed with %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/trips/%d", fixture.trip.ID),
		gin.H{"name": fixture.trip.Name, "duplicate_policy": db.PolicyAllow}, fixture.organizerCookie)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for locked policy, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTripEndpointsRejectOutsiders(t *testing.T) {
	_, r, cleanup := setupHandlerTest(t)
	defer cleanup()

	fixture := seedHandlerFixture(t, r, db.PolicySoftBlock)
	outsider := signup(t, r, "outsider")

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/trips/%d", fixture.trip.ID), nil, outsider)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d: %s", w.Code, w.Body.String())
	}

	// 协作者没有组织者权限
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/trips/%d", fixture.trip.ID),
		gin.H{"name": "改名"}, fixture.collaboratorCook)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for collaborator update, got %d: %s", w.Code, w.Body.String())
	}
}
