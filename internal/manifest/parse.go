package manifest

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// ErrEssentialMissing is returned when a file required for a usable
// reconstruction could not be parsed.
var ErrEssentialMissing = fmt.Errorf("manifest: essential file missing or unparsable")

// Parse reads metadata.xml and shapes.svg (both essential) plus the
// optional panzooms.xml, cursor.xml and deskshare.xml from workDir, and
// returns the typed, clamped, read-only record set.
//
// annotations and cursor gate whether Drawing/CursorEvent records are
// collected at all, matching the CLI's "skip annotations"/"skip cursor"
// flags (out of scope here, threaded in by the caller).
func Parse(workDir string, annotations, cursor bool) (*Parsed, error) {
	md, err := parseMetadata(filepath.Join(workDir, "metadata.xml"))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.xml: %w", ErrEssentialMissing, err)
	}

	slides, drawings, err := parseShapes(filepath.Join(workDir, "shapes.svg"), md.DurationSec, annotations)
	if err != nil {
		return nil, fmt.Errorf("%w: shapes.svg: %w", ErrEssentialMissing, err)
	}

	p := &Parsed{
		Metadata: md,
		Slides:   slides,
		Drawings: drawings,
	}

	if pz, err := parsePanZooms(filepath.Join(workDir, "panzooms.xml"), md.DurationSec); err == nil {
		p.PanZooms = pz
	}

	if cursor {
		if cu, err := parseCursor(filepath.Join(workDir, "cursor.xml"), md.DurationSec); err == nil {
			p.Cursors = cu
		}
	}

	if ds, err := parseDeskshare(filepath.Join(workDir, "deskshare.xml"), md.DurationSec); err == nil {
		p.Deskshares = ds
	}

	return p, nil
}

func clamp(ts, duration float64) float64 {
	if ts < 0 {
		return 0
	}
	if ts > duration {
		return duration
	}
	return ts
}

// ---- metadata.xml ----

type metadataXML struct {
	XMLName  xml.Name `xml:"recording"`
	Start    string   `xml:"start_time"`
	Playback struct {
		Duration string `xml:"duration"`
	} `xml:"playback"`
	Meta struct {
		MeetingName   string `xml:"meetingName"`
		OriginVersion string `xml:"bbb-origin-version"`
	} `xml:"meta"`
}

func parseMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	var mx metadataXML
	if err := xml.NewDecoder(f).Decode(&mx); err != nil {
		return Metadata{}, fmt.Errorf("decode: %w", err)
	}

	durationMS, err := cast.ToFloat64E(strings.TrimSpace(mx.Playback.Duration))
	if err != nil {
		return Metadata{}, fmt.Errorf("./playback/duration: %w", err)
	}
	startMS, _ := cast.ToInt64E(strings.TrimSpace(mx.Start))

	return Metadata{
		StartEpochMS: startMS,
		DurationSec:  durationMS / 1000.0,
		Title:        strings.TrimSpace(mx.Meta.MeetingName),
		Version:      strings.TrimSpace(mx.Meta.OriginVersion),
	}, nil
}

// ---- shapes.svg ----
//
// shapes.svg is walked token-by-token rather than unmarshaled into a fixed
// struct: the annotation groups nest arbitrarily and carry a namespaced
// xlink:href that encoding/xml's struct tags handle awkwardly.
func parseShapes(path string, duration float64, annotations bool) ([]SlideImage, map[string][]Drawing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	var slides []SlideImage
	drawings := make(map[string][]Drawing)

	var currentSlideID string // id of the <g image="..."> we are inside, "" if none
	var gDepth, slideGDepth int

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("token: %w", err)
		}

		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "image":
				if attr(se, "class") != "slide" {
					continue
				}
				in := cast.ToFloat64(attr(se, "in"))
				out := cast.ToFloat64(attr(se, "out"))
				if out < in {
					out = duration
				}
				in = clamp(in, duration)
				out = clamp(out, duration)
				if in >= duration {
					continue
				}
				w := int(cast.ToFloat64(attr(se, "width")))
				h := int(cast.ToFloat64(attr(se, "height")))
				id := attr(se, "id")
				slides = append(slides, SlideImage{
					ElementID: id,
					NumericID: numericSuffix(id),
					TsIn:      in,
					TsOut:     out,
					Width:     w,
					Height:    h,
					SrcRel:    attr(se, "href"),
				})
			case "g":
				gDepth++
				if img := attr(se, "image"); img != "" {
					currentSlideID = img
					slideGDepth = gDepth
					continue
				}
				if !annotations || currentSlideID == "" {
					continue
				}
				ts := attr(se, "timestamp")
				if ts == "" {
					continue
				}
				in := cast.ToFloat64(ts)
				if in >= duration {
					continue
				}
				in = clamp(in, duration)
				out := -1.0
				if undo := attr(se, "undo"); undo != "" {
					if v := cast.ToFloat64(undo); v >= 0 {
						out = clamp(v, duration)
					}
				}
				drawings[currentSlideID] = append(drawings[currentSlideID], Drawing{
					ElementID: attr(se, "id"),
					ShapeID:   attr(se, "shape"),
					TsIn:      in,
					TsOut:     out,
				})
			}
		case xml.EndElement:
			if se.Name.Local == "g" {
				// Only the close of the slide group itself pops the
				// context; drawing <g> children (self-closing included)
				// close at a deeper level and must not.
				if currentSlideID != "" && gDepth == slideGDepth {
					currentSlideID = ""
				}
				gDepth--
			}
		}
	}

	sort.Slice(slides, func(i, j int) bool { return slides[i].TsIn < slides[j].TsIn })
	return slides, drawings, nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func numericSuffix(elementID string) int {
	i := strings.LastIndexAny(elementID, "0123456789")
	if i < 0 {
		return 0
	}
	j := i
	for j >= 0 && elementID[j] >= '0' && elementID[j] <= '9' {
		j--
	}
	n := cast.ToInt(elementID[j+1 : i+1])
	return n
}

// ---- panzooms.xml / cursor.xml share an <event timestamp=".."> shape ----

type eventsXML struct {
	Events []eventXML `xml:"event"`
}

type eventXML struct {
	Timestamp string `xml:"timestamp,attr"`
	ViewBox   string `xml:"viewBox"`
	Cursor    string `xml:"cursor"`
}

func parsePanZooms(path string, duration float64) ([]PanZoom, error) {
	events, err := decodeEvents(path)
	if err != nil {
		return nil, err
	}

	out := make([]PanZoom, 0, len(events))
	for _, e := range events {
		ts := clamp(cast.ToFloat64(e.Timestamp), duration)
		if ts >= duration {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(e.ViewBox))
		if len(fields) != 4 {
			continue
		}
		x := cast.ToFloat64(fields[0])
		y := cast.ToFloat64(fields[1])
		w := cast.ToFloat64(fields[2])
		h := cast.ToFloat64(fields[3])
		out = append(out, PanZoom{TsIn: ts, Raw: strings.TrimSpace(e.ViewBox), X: x, Y: y, W: w, H: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TsIn < out[j].TsIn })
	return out, nil
}

func parseCursor(path string, duration float64) ([]CursorEvent, error) {
	events, err := decodeEvents(path)
	if err != nil {
		return nil, err
	}

	var out []CursorEvent
	for i, e := range events {
		ts := clamp(cast.ToFloat64(e.Timestamp), duration)
		if i == 0 {
			ts = 0.0
		}
		if ts >= duration && i != 0 {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(e.Cursor))
		if len(fields) != 2 {
			continue
		}
		fx := cast.ToFloat64(fields[0])
		fy := cast.ToFloat64(fields[1])

		// Coalesce consecutive events whose timestamp does not strictly
		// advance: keep the first event's timestamp, drop the later one's.
		if len(out) > 0 && ts <= out[len(out)-1].TsIn {
			continue
		}
		out = append(out, CursorEvent{TsIn: ts, FX: fx, FY: fy})
	}
	return out, nil
}

func decodeEvents(path string) ([]eventXML, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ex eventsXML
	if err := xml.NewDecoder(f).Decode(&ex); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return ex.Events, nil
}

// ---- deskshare.xml ----

type deskshareXML struct {
	Events []deskshareEventXML `xml:"event"`
}

type deskshareEventXML struct {
	Start  string `xml:"start_timestamp,attr"`
	Stop   string `xml:"stop_timestamp,attr"`
	Width  string `xml:"video_width,attr"`
	Height string `xml:"video_height,attr"`
}

func parseDeskshare(path string, duration float64) ([]DeskshareEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dx deskshareXML
	if err := xml.NewDecoder(f).Decode(&dx); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]DeskshareEvent, 0, len(dx.Events))
	for _, e := range dx.Events {
		start := clamp(cast.ToFloat64(e.Start), duration)
		stop := clamp(cast.ToFloat64(e.Stop), duration)
		if stop <= start {
			continue
		}
		out = append(out, DeskshareEvent{
			Start:  start,
			Stop:   stop,
			Width:  cast.ToInt(e.Width),
			Height: cast.ToInt(e.Height),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}
