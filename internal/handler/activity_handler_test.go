package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/db"
)

func TestCreateActivityRendersNotes(t *testing.T) {
	_, r, cleanup := setupHandlerTest(t)
	defer cleanup()

	fixture := seedHandlerFixture(t, r, db.PolicySoftBlock)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/trips/%d/activities", fixture.trip.ID), gin.H{
		"title": "伏见稻荷大社",
		"notes": "**千本鸟居**\n<script>alert(1)</script>",
	}, fixture.collaboratorCook)
	if w.Code != http.StatusOK {
		t.Fatalf("create activity failed with %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	activity := body["activity"].(map[string]any)
	html := activity["notes_html"].(string)
	if !strings.Contains(html, "<strong>千本鸟居</strong>") {
		t.Fatalf("expected rendered markdown, got %q", html)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected script tags to be sanitized, got %q", html)
	}
}

func TestProposalEndpoints(t *testing.T) {
	_, r, cleanup := setupHandlerTest(t)
	defer cleanup()

	fixture := seedHandlerFixture(t, r, db.PolicySoftBlock)
	path := fmt.Sprintf("/api/blocks/%d/proposals", fixture.block1.ID)

	w := doJSON(t, r, http.MethodPost, path, gin.H{"activity_id": fixture.activities[0].ID}, fixture.collaboratorCook)
	if w.Code != http.StatusOK {
		t.Fatalf("propose failed with %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	proposal := body["proposal"].(map[string]any)
	proposalID := uint(proposal["id"].(float64))

	// 重复提名被拒
	w = doJSON(t, r, http.MethodPost, path, gin.H{"activity_id": fixture.activities[0].ID}, fixture.organizerCookie)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate proposal, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, path, nil, fixture.organizerCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("list proposals failed with %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	proposals := body["proposals"].([]any)
	if len(proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(proposals))
	}
	entry := proposals[0].(map[string]any)
	activity := entry["activity"].(map[string]any)
	if activity["title"] != fixture.activities[0].Title {
		t.Fatalf("expected activity detail in proposal, got %v", entry)
	}

	// 组织者可以撤回别人的提名
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/proposals/%d", proposalID), nil, fixture.organizerCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw failed with %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, path, nil, fixture.organizerCookie)
	body = decodeBody(t, w)
	if proposals := body["proposals"].([]any); len(proposals) != 0 {
		t.Fatalf("expected empty proposal list, got %d", len(proposals))
	}
}
