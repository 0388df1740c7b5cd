package store

import "testing"

func TestCreateAndListLibraries(t *testing.T) {
	s := openTest(t)
	if _, err := s.CreateLibrary("Movies", "/data/media/movies", CategoryMovies); err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	if _, err := s.CreateLibrary("TV", "/data/media/tv", CategoryTV); err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}

	libs, err := s.ListLibraries()
	if err != nil {
		t.Fatalf("ListLibraries: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("len(libs) = %d, want 2", len(libs))
	}
}

func TestSetLibraryPlexSection(t *testing.T) {
	s := openTest(t)
	lib, _ := s.CreateLibrary("Movies", "/data/media/movies", CategoryMovies)
	if err := s.SetLibraryPlexSection(lib.ID, 7); err != nil {
		t.Fatalf("SetLibraryPlexSection: %v", err)
	}
	got, err := s.GetLibrary(lib.ID)
	if err != nil {
		t.Fatalf("GetLibrary: %v", err)
	}
	if got.PlexSectionID == nil || *got.PlexSectionID != 7 {
		t.Errorf("PlexSectionID = %v, want 7", got.PlexSectionID)
	}
}

func TestDeleteLibrary(t *testing.T) {
	s := openTest(t)
	lib, _ := s.CreateLibrary("Other", "/data/media/other", CategoryOther)
	if err := s.DeleteLibrary(lib.ID); err != nil {
		t.Fatalf("DeleteLibrary: %v", err)
	}
	if _, err := s.GetLibrary(lib.ID); err == nil {
		t.Error("GetLibrary after delete: want error, got nil")
	}
}
