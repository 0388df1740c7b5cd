package store

import "testing"

func TestGenerateApiKey_hashOnlyStored(t *testing.T) {
	s := openTest(t)
	k, raw, err := s.GenerateApiKey("ci bot")
	if err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}
	if raw == "" {
		t.Fatal("raw key empty")
	}
	if k.KeyHash != HashApiKey(raw) {
		t.Errorf("KeyHash = %q, want hash of raw", k.KeyHash)
	}
	if k.KeyHash == raw {
		t.Error("KeyHash must not equal the raw key")
	}
}

func TestFindApiKeyByHash(t *testing.T) {
	s := openTest(t)
	_, raw, err := s.GenerateApiKey("laptop")
	if err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}

	found, err := s.FindApiKeyByHash(HashApiKey(raw))
	if err != nil {
		t.Fatalf("FindApiKeyByHash: %v", err)
	}
	if found.Label != "laptop" {
		t.Errorf("Label = %q, want laptop", found.Label)
	}

	if _, err := s.FindApiKeyByHash(HashApiKey("wrong-key")); err == nil {
		t.Error("FindApiKeyByHash with wrong key: want error, got nil")
	}
}

func TestListAndDeleteApiKeys(t *testing.T) {
	s := openTest(t)
	k, _, err := s.GenerateApiKey("a")
	if err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}
	if _, _, err := s.GenerateApiKey("b"); err != nil {
		t.Fatalf("GenerateApiKey: %v", err)
	}

	keys, err := s.ListApiKeys()
	if err != nil {
		t.Fatalf("ListApiKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}

	if err := s.DeleteApiKey(k.ID); err != nil {
		t.Fatalf("DeleteApiKey: %v", err)
	}
	keys, _ = s.ListApiKeys()
	if len(keys) != 1 {
		t.Errorf("len(keys) after delete = %d, want 1", len(keys))
	}
}
