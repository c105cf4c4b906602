package timeline

import (
	"testing"

	"github.com/bbbrecorder/bbbrecorder/internal/manifest"
	"github.com/stretchr/testify/require"
)

func TestCompileSingleSlide(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 10.0},
		Slides: []manifest.SlideImage{
			{ElementID: "image1", TsIn: 0, TsOut: 10, Width: 640, Height: 480},
		},
		Drawings: map[string][]manifest.Drawing{},
	}

	tl := Compile(p)
	require.Len(t, tl.Frames, 2)
	require.Equal(t, 0.0, tl.Frames[0].Timestamp)
	require.Equal(t, ShowImage, tl.Frames[0].Actions[0].Kind)
	require.Equal(t, 10.0, tl.Frames[1].Timestamp)
	require.Equal(t, HideImage, tl.Frames[1].Actions[0].Kind)

	require.Len(t, tl.Partitions, 1)
	require.Equal(t, Partition{Start: 0, End: 10}, tl.Partitions[0])
}

func TestCompileAnnotationSplitsPartition(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 10.0},
		Slides: []manifest.SlideImage{
			{ElementID: "imageA", TsIn: 0, TsOut: 5},
			{ElementID: "imageB", TsIn: 5, TsOut: 10},
		},
		Drawings: map[string][]manifest.Drawing{
			"imageA": {{ElementID: "d1", ShapeID: "s1", TsIn: 2, TsOut: 4}},
		},
	}

	tl := Compile(p)
	require.Equal(t, []Partition{{Start: 0, End: 5}, {Start: 5, End: 10}}, tl.Partitions)

	var sawShowDraw, sawHideDraw bool
	for _, f := range tl.Frames {
		for _, a := range f.Actions {
			if a.Kind == ShowDrawing && f.Timestamp == 2 {
				sawShowDraw = true
			}
			if a.Kind == HideDrawing && f.Timestamp == 4 {
				sawHideDraw = true
			}
		}
	}
	require.True(t, sawShowDraw)
	require.True(t, sawHideDraw)
}

func TestViewBoxAtCursorTranslation(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 10.0},
		Slides: []manifest.SlideImage{
			{ElementID: "image1", TsIn: 0, TsOut: 10},
		},
		Drawings: map[string][]manifest.Drawing{},
		PanZooms: []manifest.PanZoom{
			{TsIn: 1, X: 0, Y: 0, W: 800, H: 600},
			{TsIn: 3, X: 100, Y: 100, W: 400, H: 300},
		},
	}

	tl := Compile(p)
	vb, ok := tl.ViewBoxAt(3.5)
	require.True(t, ok)
	require.Equal(t, 100.0, vb.X)
	require.Equal(t, 100.0, vb.Y)
	require.Equal(t, 400.0, vb.W)
	require.Equal(t, 300.0, vb.H)

	// Absolute cursor coordinates at t=3.5 with fx=fy=0.5.
	fx, fy := 0.5, 0.5
	x := vb.X + fx*vb.W
	y := vb.Y + fy*vb.H
	require.Equal(t, 300.0, x)
	require.Equal(t, 250.0, y)
}

func TestOnlyZoomsSortedDescending(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 10.0},
		Slides:   []manifest.SlideImage{{ElementID: "image1", TsIn: 0, TsOut: 10}},
		Drawings: map[string][]manifest.Drawing{},
		PanZooms: []manifest.PanZoom{{TsIn: 1}, {TsIn: 5}, {TsIn: 2}},
	}
	tl := Compile(p)
	for i := 1; i < len(tl.OnlyZooms); i++ {
		require.GreaterOrEqual(t, tl.OnlyZooms[i-1].Timestamp, tl.OnlyZooms[i].Timestamp)
	}
}

func TestPartitionsCoverSlidesAndDontOverlap(t *testing.T) {
	p := &manifest.Parsed{
		Metadata: manifest.Metadata{DurationSec: 20.0},
		Slides: []manifest.SlideImage{
			{ElementID: "a", TsIn: 0, TsOut: 5},
			{ElementID: "b", TsIn: 5, TsOut: 12},
			{ElementID: "c", TsIn: 12, TsOut: 20},
		},
		Drawings: map[string][]manifest.Drawing{},
	}
	tl := Compile(p)
	for i := 1; i < len(tl.Partitions); i++ {
		require.LessOrEqual(t, tl.Partitions[i-1].End, tl.Partitions[i].Start)
	}
	require.Equal(t, 0.0, tl.Partitions[0].Start)
	require.Equal(t, 20.0, tl.Partitions[len(tl.Partitions)-1].End)
}
