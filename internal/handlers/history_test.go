package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/clustereye/collector/internal/history"
	"github.com/clustereye/collector/internal/logging"
)

type stubHistory struct {
	entries map[int]*history.GroupHistoryEntry
	err     error
}

func (s *stubHistory) GroupHistory(ctx context.Context, groupID int) (*history.GroupHistoryEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries[groupID], nil
}

func setupHistoryApp(t *testing.T, src HistorySource) *fiber.App {
	t.Helper()

	app := fiber.New()
	handler := New(logging.NewDevelopment(), &stubCore{})
	if src != nil {
		handler.SetHistorySource(src)
	}
	app.Get("/v1/groups/:group_id/history", handler.GroupHistory)
	return app
}

func mustHistoryEntry(t *testing.T, groupID int) *history.GroupHistoryEntry {
	t.Helper()

	raw, err := bson.Marshal(bson.M{
		"group_id": groupID,
		"nodes": bson.A{
			bson.M{
				"timestamp": 100.0,
				"type":      "job",
				"set": bson.A{
					bson.M{"hostname": "h1", "port": 1025, "family": 2, "backend_id": 1},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("bson marshal: %v", err)
	}

	entry, err := history.ParseGroupHistoryEntry(raw)
	if err != nil {
		t.Fatalf("parse history doc: %v", err)
	}
	return entry
}

func TestGroupHistoryHandler(t *testing.T) {
	entry := mustHistoryEntry(t, 7)
	app := setupHistoryApp(t, &stubHistory{entries: map[int]*history.GroupHistoryEntry{7: entry}})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/groups/7/history", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["group_id"].(float64) != 7 {
		t.Errorf("group_id = %v", body["group_id"])
	}
	if body["empty"].(bool) {
		t.Error("entry with a job record should not be empty")
	}
}

func TestGroupHistoryHandlerNotFound(t *testing.T) {
	app := setupHistoryApp(t, &stubHistory{entries: map[int]*history.GroupHistoryEntry{}})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/groups/9/history", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGroupHistoryHandlerNotConfigured(t *testing.T) {
	app := setupHistoryApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/groups/9/history", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestGroupHistoryHandlerBadID(t *testing.T) {
	app := setupHistoryApp(t, &stubHistory{})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/groups/seven/history", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
