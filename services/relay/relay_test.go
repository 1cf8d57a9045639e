// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 12220, cfg.Port)
	assert.Equal(t, "./data/relay", cfg.StorePath)
	assert.Equal(t, "aleutian-otel-collector:4317", cfg.OTelEndpoint)
}

func TestApplyConfigDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := applyConfigDefaults(Config{
		Port:         9000,
		StorePath:    "/tmp/relay",
		OTelEndpoint: "collector:4317",
	})

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/tmp/relay", cfg.StorePath)
	assert.Equal(t, "collector:4317", cfg.OTelEndpoint)
}

func TestNew_RequiresGenerationAPIKey(t *testing.T) {
	_, err := New(Config{InMemoryStore: true, GinMode: gin.TestMode})
	require.Error(t, err)
}

func TestNew_InMemoryService(t *testing.T) {
	svc, err := New(Config{
		InMemoryStore:  true,
		DeepSeekAPIKey: "test-key",
		GinMode:        gin.TestMode,
	})
	require.NoError(t, err)
	require.NotNil(t, svc.Router())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
