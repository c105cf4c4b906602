package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bbbrecorder/bbbrecorder/internal/config"
	"github.com/bbbrecorder/bbbrecorder/internal/ffmpeg"
	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
)

type fakeTranscoder struct {
	frozen    bool
	freezeErr error

	freezeChecked  bool
	probed         bool
	addedWebcam    bool
	addedAudioOnly bool
}

func (f *fakeTranscoder) ProbeVideo(string) (ffmpeg.VideoInfo, error) {
	f.probed = true
	return ffmpeg.VideoInfo{DurationSec: 30, Width: 1280, Height: 720}, nil
}

func (f *fakeTranscoder) DetectFreeze(string) (bool, error) {
	f.freezeChecked = true
	return f.frozen, f.freezeErr
}

func (f *fakeTranscoder) BuildSlideshow(string, string, int, int) error { return nil }

func (f *fakeTranscoder) ResizeDeskshare(string, string, int, int) error { return nil }

func (f *fakeTranscoder) AddDeskshare(string, string) error { return nil }

func (f *fakeTranscoder) AddWebcam(string, string, string, int, int) error {
	f.addedWebcam = true
	return nil
}

func (f *fakeTranscoder) AddAudioOnly(string, string, string) error {
	f.addedAudioOnly = true
	return nil
}

// A webcam whose freeze-detector reports one early freeze and no thaw is
// really a placeholder image: the mux must take audio only.
func TestFinalMuxChoosesAudioOnlyOnFrozenWebcam(t *testing.T) {
	fake := &fakeTranscoder{frozen: true}
	err := finalMux(fake, &config.Options{}, "/work", "/work/presentation.mp4", "video/webcams.webm", "/out/final.mp4")
	require.NoError(t, err)
	require.True(t, fake.freezeChecked)
	require.True(t, fake.addedAudioOnly)
	require.False(t, fake.addedWebcam)
}

func TestFinalMuxOverlaysLiveWebcam(t *testing.T) {
	fake := &fakeTranscoder{frozen: false}
	err := finalMux(fake, &config.Options{}, "/work", "/work/presentation.mp4", "video/webcams.webm", "/out/final.mp4")
	require.NoError(t, err)
	require.True(t, fake.freezeChecked)
	require.True(t, fake.probed)
	require.True(t, fake.addedWebcam)
	require.False(t, fake.addedAudioOnly)
}

func TestFinalMuxSkipFreezeCheck(t *testing.T) {
	fake := &fakeTranscoder{frozen: true}
	err := finalMux(fake, &config.Options{SkipFreezeCheck: true}, "/work", "/work/presentation.mp4", "video/webcams.webm", "/out/final.mp4")
	require.NoError(t, err)
	require.False(t, fake.freezeChecked)
	require.True(t, fake.addedWebcam)
}

func TestFinalMuxFreezeErrorFallsBackToOverlay(t *testing.T) {
	fake := &fakeTranscoder{freezeErr: errors.New("freezedetect unavailable")}
	err := finalMux(fake, &config.Options{}, "/work", "/work/presentation.mp4", "video/webcams.webm", "/out/final.mp4")
	require.NoError(t, err)
	require.True(t, fake.addedWebcam)
	require.False(t, fake.addedAudioOnly)
}

func TestFinalMuxWithoutWebcamCopiesVideo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "presentation.mp4")
	dst := filepath.Join(dir, "final.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video-bytes"), 0o644))

	fake := &fakeTranscoder{}
	require.NoError(t, finalMux(fake, &config.Options{}, dir, src, "", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "video-bytes", string(got))
	require.False(t, fake.freezeChecked)
}

func TestAssetRel(t *testing.T) {
	cases := []struct{ in, want string }{
		{"presentation/abc123/slide-1.png", "presentation/abc123/slide-1.png"},
		{"/presentation/abc123/slide-1.png", "presentation/abc123/slide-1.png"},
		{"presentation/abc123/slide-1.png?t=42", "presentation/abc123/slide-1.png"},
		{"", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, assetRel(c.in))
	}
}

func TestOutputDimensions(t *testing.T) {
	parsed := &manifest.Parsed{
		Slides: []manifest.SlideImage{{Width: 1024, Height: 768}},
	}

	w, h := outputDimensions(parsed, &config.Options{})
	require.Equal(t, 1024, w)
	require.Equal(t, 768, h)

	w, h = outputDimensions(parsed, &config.Options{ForceWidth: 1920, ForceHeight: 1080})
	require.Equal(t, 1920, w)
	require.Equal(t, 1080, h)

	w, h = outputDimensions(&manifest.Parsed{}, &config.Options{})
	require.Equal(t, 1280, w)
	require.Equal(t, 720, h)
}

func TestFetchListsCoverEssentialManifests(t *testing.T) {
	require.Contains(t, essentialFiles, "metadata.xml")
	require.Contains(t, essentialFiles, "shapes.svg")
	for _, opt := range []string{"panzooms.xml", "cursor.xml", "deskshare.xml", "captions.json", "events.xml"} {
		require.Contains(t, optionalManifestFiles, opt)
	}
}
