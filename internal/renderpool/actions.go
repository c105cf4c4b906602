package renderpool

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/bbbrecorder/bbbrecorder/internal/timeline"
)

func rodTargetURL(url string) proto.TargetCreateTarget {
	return proto.TargetCreateTarget{URL: url}
}

// injectJS stretches #svgfile to fill the viewport and adds a hidden red
// cursor circle, run once per partition right after shapes.svg loads.
const injectJS = `() => {
	const svg = document.querySelector('#svgfile');
	if (svg) {
		svg.style.width = '100vw';
		svg.style.height = '100vh';
	}
	if (!document.getElementById('cursor')) {
		const ns = 'http://www.w3.org/2000/svg';
		const c = document.createElementNS(ns, 'circle');
		c.setAttribute('id', 'cursor');
		c.setAttribute('r', '8');
		c.setAttribute('fill', 'red');
		c.style.visibility = 'hidden';
		(svg || document.body).appendChild(c);
	}
}`

const setViewBoxJS = `(x, y, w, h) => {
	const svg = document.querySelector('#svgfile');
	if (svg) {
		svg.setAttribute('viewBox', x + ' ' + y + ' ' + w + ' ' + h);
	}
}`

// Showing a slide restores the cursor if it has been placed; hiding a
// slide takes the cursor with it. The placed flag keeps a cursor that was
// never positioned (or was parked at the hidden sentinel) from appearing
// on a fresh slide.
const showImageJS = `(eid, nid) => {
	const img = document.getElementById(eid);
	if (img) img.style.visibility = 'visible';
	const canvas = document.getElementById('canvas' + nid);
	if (canvas) canvas.style.display = 'inline';
	const c = document.getElementById('cursor');
	if (c && c.dataset.placed === '1') c.style.visibility = 'visible';
}`

const hideImageJS = `(eid, nid) => {
	const img = document.getElementById(eid);
	if (img) img.style.visibility = 'hidden';
	const canvas = document.getElementById('canvas' + nid);
	if (canvas) canvas.style.display = 'none';
	const c = document.getElementById('cursor');
	if (c) c.style.visibility = 'hidden';
}`

// showDrawingJS hides every sibling with the same shape id ("most-recent
// stroke wins within a shape") before revealing this one.
const showDrawingJS = `(eid, shape) => {
	document.querySelectorAll('[shape="' + shape + '"]').forEach(el => {
		el.style.visibility = 'hidden';
	});
	const el = document.getElementById(eid);
	if (el) el.style.visibility = 'visible';
}`

const hideDrawingJS = `(eid) => {
	const el = document.getElementById(eid);
	if (el) el.style.visibility = 'hidden';
}`

const moveCursorJS = `(x, y, hidden) => {
	const c = document.getElementById('cursor');
	if (!c) return;
	if (hidden) {
		c.dataset.placed = '0';
		c.style.visibility = 'hidden';
		return;
	}
	c.setAttribute('cx', x);
	c.setAttribute('cy', y);
	c.dataset.placed = '1';
	c.style.visibility = 'visible';
}`

// applyAction replays one Action against the live DOM. MoveCursor
// translates fractional coordinates through the view box currently in
// effect, matching what the BigBlueButton player shows on screen.
// viewBox is this partition's own running state: each worker renders one
// partition at a time on its own page, so threading it as a parameter
// rather than shared mutable state keeps concurrent workers from racing
// on each other's view box.
func applyAction(page *rod.Page, a timeline.Action, viewBox *timeline.Action) error {
	var err error
	switch a.Kind {
	case timeline.ShowImage:
		_, err = page.Eval(showImageJS, a.ElementID, a.NumericID)
	case timeline.HideImage:
		_, err = page.Eval(hideImageJS, a.ElementID, a.NumericID)
	case timeline.ShowDrawing:
		_, err = page.Eval(showDrawingJS, a.ElementID, a.ShapeID)
	case timeline.HideDrawing:
		_, err = page.Eval(hideDrawingJS, a.ElementID)
	case timeline.SetViewBox:
		*viewBox = a
		_, err = page.Eval(setViewBoxJS, a.X, a.Y, a.W, a.H)
	case timeline.MoveCursor:
		hidden := a.FX == -1 && a.FY == -1
		x, y := 0.0, 0.0
		if !hidden {
			x = viewBox.X + a.FX*viewBox.W
			y = viewBox.Y + a.FY*viewBox.H
		}
		_, err = page.Eval(moveCursorJS, x, y, hidden)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
	return err
}
