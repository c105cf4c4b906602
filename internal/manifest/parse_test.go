package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// Single slide, no annotations.
func TestParseSingleSlide(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metadata.xml", `<recording><start_time>1000</start_time>
		<playback><duration>10000</duration></playback>
		<meta><meetingName>Demo</meetingName></meta></recording>`)
	writeFile(t, dir, "shapes.svg", `<svg xmlns:xlink="http://www.w3.org/1999/xlink">
		<image class="slide" id="image1" in="0.0" out="10.0" width="640" height="480" xlink:href="slide1.png"/>
	</svg>`)

	p, err := Parse(dir, true, true)
	require.NoError(t, err)
	require.Equal(t, 10.0, p.Metadata.DurationSec)
	require.Equal(t, "Demo", p.Metadata.Title)
	require.Len(t, p.Slides, 1)
	require.Equal(t, 0.0, p.Slides[0].TsIn)
	require.Equal(t, 10.0, p.Slides[0].TsOut)
	require.Equal(t, 640, p.Slides[0].Width)
	require.Equal(t, 480, p.Slides[0].Height)
}

// Two slides, one annotated with a shown/hidden drawing.
func TestParseAnnotatedSlide(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metadata.xml", `<recording><start_time>0</start_time>
		<playback><duration>10000</duration></playback>
		<meta><meetingName>Demo</meetingName></meta></recording>`)
	writeFile(t, dir, "shapes.svg", `<svg xmlns:xlink="http://www.w3.org/1999/xlink">
		<image class="slide" id="image1" in="0" out="5" width="640" height="480" xlink:href="a.png"/>
		<g image="image1">
			<g id="draw1" timestamp="2" undo="4" shape="s1"/>
		</g>
		<image class="slide" id="image2" in="5" out="10" width="640" height="480" xlink:href="b.png"/>
	</svg>`)

	p, err := Parse(dir, true, true)
	require.NoError(t, err)
	require.Len(t, p.Slides, 2)
	require.Len(t, p.Drawings["image1"], 1)
	d := p.Drawings["image1"][0]
	require.Equal(t, 2.0, d.TsIn)
	require.Equal(t, 4.0, d.TsOut)
	require.Equal(t, "s1", d.ShapeID)
}

func TestParseMultipleDrawingsInOneGroup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metadata.xml", `<recording><start_time>0</start_time>
		<playback><duration>10000</duration></playback>
		<meta><meetingName>Demo</meetingName></meta></recording>`)
	writeFile(t, dir, "shapes.svg", `<svg xmlns:xlink="http://www.w3.org/1999/xlink">
		<image class="slide" id="image1" in="0" out="10" width="640" height="480" xlink:href="a.png"/>
		<g image="image1">
			<g id="draw1" timestamp="1" undo="-1" shape="s1"/>
			<g id="draw2" timestamp="2" undo="-1" shape="s1"/>
			<g id="draw3" timestamp="3" undo="5" shape="s2"/>
		</g>
	</svg>`)

	p, err := Parse(dir, true, true)
	require.NoError(t, err)
	require.Len(t, p.Drawings["image1"], 3)
	require.Equal(t, -1.0, p.Drawings["image1"][1].TsOut)
	require.Equal(t, 5.0, p.Drawings["image1"][2].TsOut)
}

// Pan/zoom handoff and cursor fraction translation is verified in the
// timeline package; here we just confirm the raw records parse correctly.
func TestParsePanZoomAndCursor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metadata.xml", `<recording><start_time>0</start_time>
		<playback><duration>10000</duration></playback>
		<meta><meetingName>Demo</meetingName></meta></recording>`)
	writeFile(t, dir, "shapes.svg", `<svg xmlns:xlink="http://www.w3.org/1999/xlink">
		<image class="slide" id="image1" in="0" out="10" width="640" height="480" xlink:href="a.png"/>
	</svg>`)
	writeFile(t, dir, "panzooms.xml", `<events>
		<event timestamp="1"><viewBox>0 0 800 600</viewBox></event>
		<event timestamp="3"><viewBox>100 100 400 300</viewBox></event>
	</events>`)
	writeFile(t, dir, "cursor.xml", `<events>
		<event timestamp="2"><cursor>0.1 0.2</cursor></event>
		<event timestamp="3.5"><cursor>0.5 0.5</cursor></event>
	</events>`)

	p, err := Parse(dir, true, true)
	require.NoError(t, err)
	require.Len(t, p.PanZooms, 2)
	require.Equal(t, 100.0, p.PanZooms[1].X)
	require.Len(t, p.Cursors, 2)
	require.Equal(t, 0.0, p.Cursors[0].TsIn) // first cursor event forced to 0
}

func TestParseDeskshareNonOverlapping(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metadata.xml", `<recording><start_time>0</start_time>
		<playback><duration>30000</duration></playback>
		<meta><meetingName>Demo</meetingName></meta></recording>`)
	writeFile(t, dir, "shapes.svg", `<svg xmlns:xlink="http://www.w3.org/1999/xlink">
		<image class="slide" id="image1" in="0" out="30" width="640" height="480" xlink:href="a.png"/>
	</svg>`)
	writeFile(t, dir, "deskshare.xml", `<events>
		<event start_timestamp="10" stop_timestamp="20" video_width="1280" video_height="720"/>
	</events>`)

	p, err := Parse(dir, false, false)
	require.NoError(t, err)
	require.Len(t, p.Deskshares, 1)
	require.Equal(t, 10.0, p.Deskshares[0].Start)
	require.Equal(t, 20.0, p.Deskshares[0].Stop)
}

func TestParseMissingEssentialIsFatal(t *testing.T) {
	dir := t.TempDir()
	_, err := Parse(dir, true, true)
	require.Error(t, err)
}

func TestRewriteImageHrefs(t *testing.T) {
	svg := []byte(`<image xlink:href="slide1.png" id="x"/>`)
	out := RewriteImageHrefs(svg, func(rel string) string { return "/frames-root/" + rel })
	require.Contains(t, string(out), `xlink:href="/frames-root/slide1.png"`)
}
