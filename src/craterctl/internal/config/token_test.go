package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// TokenData Tests
// =============================================================================

func TestTokenData_JSONRoundTrip(t *testing.T) {
	original := &TokenData{
		Token:     "jwt-123",
		Role:      "submitter",
		ServerURL: "http://localhost:8443",
		Subject:   "alice",
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded TokenData
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.Token != original.Token {
		t.Errorf("token mismatch: got %s, want %s", decoded.Token, original.Token)
	}
	if decoded.Role != original.Role {
		t.Errorf("role mismatch: got %s, want %s", decoded.Role, original.Role)
	}
	if decoded.ServerURL != original.ServerURL {
		t.Errorf("server_url mismatch: got %s, want %s", decoded.ServerURL, original.ServerURL)
	}
	if decoded.Subject != original.Subject {
		t.Errorf("subject mismatch: got %s, want %s", decoded.Subject, original.Subject)
	}
}

func TestTokenData_JSONFieldNames(t *testing.T) {
	td := &TokenData{Token: "jwt", Role: "admin"}
	data, _ := json.Marshal(td)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m["token"]; !ok {
		t.Error("expected json field 'token'")
	}
	if _, ok := m["server_url"]; !ok {
		t.Error("expected json field 'server_url'")
	}
}

// =============================================================================
// File I/O Tests (using temp directory)
// =============================================================================

func TestTokenFile_RoundTrip(t *testing.T) {
	// SaveToken writes under the real home directory, so the file format is
	// exercised against a temp path instead
	tmpDir := t.TempDir()
	tokenPath := filepath.Join(tmpDir, "token.json")

	original := &TokenData{
		Token:     "jwt-123",
		Role:      "admin",
		ServerURL: "http://test:8443",
		Subject:   "alice",
	}

	data, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if err := os.WriteFile(tokenPath, data, 0600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("failed to stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permissions 0600, got %o", perm)
	}

	readData, err := os.ReadFile(tokenPath)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	var loaded TokenData
	if err := json.Unmarshal(readData, &loaded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if loaded.Token != original.Token {
		t.Errorf("token mismatch after load: got %s", loaded.Token)
	}
	if loaded.Role != original.Role {
		t.Errorf("role mismatch after load: got %s", loaded.Role)
	}
}
