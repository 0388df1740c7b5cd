package store

import "testing"

func TestCreateAndGetPeer(t *testing.T) {
	s := openTest(t)
	p, err := s.CreatePeer("Friend Node", "https://friend.example.com", "secret-key", false, nil)
	if err != nil {
		t.Fatalf("CreatePeer: %v", err)
	}
	got, err := s.GetPeer(p.ID)
	if err != nil {
		t.Fatalf("GetPeer: %v", err)
	}
	if got.Name != "Friend Node" || got.URL != "https://friend.example.com" {
		t.Errorf("GetPeer mismatch: %+v", got)
	}
	if got.LastSeen != nil {
		t.Errorf("LastSeen should start nil, got %v", got.LastSeen)
	}
}

func TestTouchPeerLastSeen(t *testing.T) {
	s := openTest(t)
	p, _ := s.CreatePeer("Peer", "https://peer.example.com", "k", false, nil)
	if err := s.TouchPeerLastSeen(p.ID); err != nil {
		t.Fatalf("TouchPeerLastSeen: %v", err)
	}
	got, _ := s.GetPeer(p.ID)
	if got.LastSeen == nil {
		t.Error("LastSeen still nil after touch")
	}
}

func TestSetPeerInstanceID(t *testing.T) {
	s := openTest(t)
	p, _ := s.CreatePeer("Peer", "https://peer.example.com", "k", false, nil)
	if err := s.SetPeerInstanceID(p.ID, "remote-instance-abc"); err != nil {
		t.Fatalf("SetPeerInstanceID: %v", err)
	}
	got, _ := s.GetPeer(p.ID)
	if got.InstanceID == nil || *got.InstanceID != "remote-instance-abc" {
		t.Errorf("InstanceID = %v, want remote-instance-abc", got.InstanceID)
	}
}

func TestListAutoReplicatePeers(t *testing.T) {
	s := openTest(t)
	libID := "some-library-id"
	p1, _ := s.CreatePeer("Auto", "https://auto.example.com", "k1", true, &libID)
	_, _ = s.CreatePeer("Manual", "https://manual.example.com", "k2", false, nil)

	auto, err := s.ListAutoReplicatePeers()
	if err != nil {
		t.Fatalf("ListAutoReplicatePeers: %v", err)
	}
	if len(auto) != 1 || auto[0].ID != p1.ID {
		t.Errorf("ListAutoReplicatePeers = %+v, want just %s", auto, p1.ID)
	}
}

func TestSetPeerAutoReplicate(t *testing.T) {
	s := openTest(t)
	p, _ := s.CreatePeer("Peer", "https://peer.example.com", "k", false, nil)
	libID := "lib-1"
	if err := s.SetPeerAutoReplicate(p.ID, true, &libID); err != nil {
		t.Fatalf("SetPeerAutoReplicate: %v", err)
	}
	got, _ := s.GetPeer(p.ID)
	if !got.AutoReplicate || got.SyncLibraryID == nil || *got.SyncLibraryID != "lib-1" {
		t.Errorf("after enable: %+v", got)
	}
}

func TestDeletePeer(t *testing.T) {
	s := openTest(t)
	p, _ := s.CreatePeer("Gone", "https://gone.example.com", "k", false, nil)
	if err := s.DeletePeer(p.ID); err != nil {
		t.Fatalf("DeletePeer: %v", err)
	}
	if _, err := s.GetPeer(p.ID); err == nil {
		t.Error("GetPeer after delete: want error, got nil")
	}
}
