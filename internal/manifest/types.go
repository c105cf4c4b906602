package manifest

// Metadata is the immutable recording metadata parsed from metadata.xml.
type Metadata struct {
	StartEpochMS int64
	DurationSec  float64
	Title        string
	Version      string // optional bbb-origin-version
}

// SlideImage is one <image class="slide"> entry from shapes.svg.
type SlideImage struct {
	ElementID string
	NumericID int
	TsIn      float64
	TsOut     float64
	Width     int
	Height    int
	SrcRel    string // relative xlink:href as published
}

// Drawing is one annotation <g timestamp=".." undo=".." shape=".."> child
// of a slide's <g image="<id>"> group.
type Drawing struct {
	ElementID string
	ShapeID   string
	TsIn      float64
	TsOut     float64 // -1 means never hidden
}

// PanZoom is one <event timestamp=".."><viewBox>x y w h</viewBox></event>.
type PanZoom struct {
	TsIn float64
	Raw  string
	X, Y, W, H float64
}

// CursorEvent is one <event timestamp=".."><cursor>fx fy</cursor></event>.
// (-1,-1) means the cursor is hidden.
type CursorEvent struct {
	TsIn float64
	FX, FY float64
}

// DeskshareEvent is one screen-share interval. Events are non-overlapping
// and sorted by Start.
type DeskshareEvent struct {
	Start, Stop   float64
	Width, Height int
}

// Parsed is every typed record extracted from the working directory by the
// manifest parser, read-only once built.
type Parsed struct {
	Metadata   Metadata
	Slides     []SlideImage
	Drawings   map[string][]Drawing // keyed by slide element id
	PanZooms   []PanZoom
	Cursors    []CursorEvent
	Deskshares []DeskshareEvent
}
