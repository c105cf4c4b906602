package recording

import "testing"

func TestParseURL(t *testing.T) {
	id, err := ParseURL("https://bbb.example.com/playback/presentation/2.3/playback.html?meetingId=aaaa-bbbb-cccc-dddd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Scheme != "https" || id.Host != "bbb.example.com" || id.Version != "2.3" || id.Hex != "aaaa-bbbb-cccc-dddd" {
		t.Fatalf("unexpected id: %+v", id)
	}
	if got, want := id.BaseURL(), "https://bbb.example.com/presentation/aaaa-bbbb-cccc-dddd/"; got != want {
		t.Fatalf("BaseURL() = %q, want %q", got, want)
	}
}

func TestParseURLDirectForm(t *testing.T) {
	id, err := ParseURL("https://bbb.example.com/playback/presentation/2.3/aaaa-bbbb-cccc-dddd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Hex != "aaaa-bbbb-cccc-dddd" {
		t.Fatalf("unexpected hex: %q", id.Hex)
	}
}

func TestParseURLRejectsNonPlayback(t *testing.T) {
	if _, err := ParseURL("https://bbb.example.com/recording/1234"); err == nil {
		t.Fatal("expected an error for a non-playback URL")
	}
}

func TestWorkDirNameIsStable(t *testing.T) {
	id, err := ParseURL("https://bbb.example.com/playback/presentation/2.3/aaaa-bbbb-cccc-dddd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := id.WorkDirName()
	b := id.WorkDirName()
	if a != b {
		t.Fatalf("WorkDirName not stable: %q vs %q", a, b)
	}
	other, _ := ParseURL("https://bbb.example.com/playback/presentation/2.3/eeee-ffff-0000-1111")
	if other.WorkDirName() == a {
		t.Fatal("distinct recording ids hashed to the same working directory name")
	}
}

func TestNewContext(t *testing.T) {
	id, _ := ParseURL("https://bbb.example.com/playback/presentation/2.3/aaaa-bbbb-cccc-dddd")
	ctx := New(id, "/tmp/working")
	want := "/tmp/working/" + id.WorkDirName()
	if ctx.WorkDir != want {
		t.Fatalf("WorkDir = %q, want %q", ctx.WorkDir, want)
	}
}
