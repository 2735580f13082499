package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSystemHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Create handler
	handler := NewSystemHandler("1.2.3")

	// Setup request
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	// Execute handler
	handler.Health(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	expected := map[string]string{"status": "ok", "service": "pasta", "version": "1.2.3"}
	for field, want := range expected {
		if got, ok := response[field]; !ok {
			t.Errorf("Expected '%s' field in response", field)
		} else if got != want {
			t.Errorf("Expected %s '%s', got '%v'", field, want, got)
		}
	}
}

func TestSystemHandler_Languages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSystemHandler("test")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/languages?extension=tsx", nil)
	handler.Languages(c)

	var response struct {
		Languages []struct {
			Label string `json:"label"`
			Value string `json:"value"`
		} `json:"languages"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response.Languages) != 10 || response.Languages[0].Value != "auto" {
		t.Errorf("Unexpected language list: %+v", response.Languages)
	}
	if response.Mode != "typescript" {
		t.Errorf("Expected mode typescript for tsx, got %q", response.Mode)
	}
}
