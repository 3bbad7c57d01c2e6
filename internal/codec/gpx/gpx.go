// Package gpx parses and serializes GPX 1.1 documents to and from the track
// document model. The codec carries no structural-edit logic; it only maps
// the wire format onto model values.
package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/track"
)

const (
	defaultNamespace = "http://www.topografix.com/GPX/1/1"
	defaultVersion   = "1.1"
	defaultCreator   = "trackdeck"
)

type gpxDoc struct {
	XMLName   xml.Name      `xml:"gpx"`
	XMLNS     string        `xml:"xmlns,attr"`
	Version   string        `xml:"version,attr"`
	Creator   string        `xml:"creator,attr"`
	Metadata  *gpxMetadata  `xml:"metadata,omitempty"`
	Waypoints []gpxWaypoint `xml:"wpt"`
	Tracks    []gpxTrack    `xml:"trk"`
}

type gpxMetadata struct {
	Name string `xml:"name,omitempty"`
}

type gpxWaypoint struct {
	Lat       float64  `xml:"lat,attr"`
	Lon       float64  `xml:"lon,attr"`
	Elevation *float64 `xml:"ele,omitempty"`
	Time      string   `xml:"time,omitempty"`
	Name      string   `xml:"name,omitempty"`
}

type gpxTrack struct {
	Name     string       `xml:"name,omitempty"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat       float64  `xml:"lat,attr"`
	Lon       float64  `xml:"lon,attr"`
	Elevation *float64 `xml:"ele,omitempty"`
	Time      string   `xml:"time,omitempty"`
}

// Parse reads one GPX document and returns it as a File. The returned file
// has no ID; the engine assigns one at import.
func Parse(r io.Reader) (*track.File, error) {
	var doc gpxDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse gpx: %w", err)
	}

	f := &track.File{}
	if doc.Metadata != nil {
		f.Name = doc.Metadata.Name
	}

	for _, wpt := range doc.Waypoints {
		w := track.Waypoint{
			Name:  wpt.Name,
			Coord: geo.Coord{Lat: wpt.Lat, Lon: wpt.Lon},
		}
		if wpt.Elevation != nil {
			w.Elevation = *wpt.Elevation
		}
		if ts, err := parseTime(wpt.Time); err == nil {
			w.Time = ts
		}
		f.Waypoints = append(f.Waypoints, w)
	}

	for _, trk := range doc.Tracks {
		t := track.Track{Name: trk.Name, Style: track.DefaultStyle()}
		for _, seg := range trk.Segments {
			s := track.Segment{}
			for _, pt := range seg.Points {
				p := track.Point{Coord: geo.Coord{Lat: pt.Lat, Lon: pt.Lon}}
				if pt.Elevation != nil {
					p.Elevation = *pt.Elevation
				}
				if ts, err := parseTime(pt.Time); err == nil {
					p.Time = ts
				}
				s.Points = append(s.Points, p)
			}
			t.Segments = append(t.Segments, s)
		}
		f.Tracks = append(f.Tracks, t)
	}

	return f, nil
}

// Serialize writes f as a GPX 1.1 document.
func Serialize(f *track.File, w io.Writer) error {
	doc := gpxDoc{
		XMLNS:   defaultNamespace,
		Version: defaultVersion,
		Creator: defaultCreator,
	}
	if f.Name != "" {
		doc.Metadata = &gpxMetadata{Name: f.Name}
	}

	for _, wp := range f.Waypoints {
		ele := wp.Elevation
		doc.Waypoints = append(doc.Waypoints, gpxWaypoint{
			Lat:       wp.Coord.Lat,
			Lon:       wp.Coord.Lon,
			Elevation: &ele,
			Time:      formatTime(wp.Time),
			Name:      wp.Name,
		})
	}

	for _, tr := range f.Tracks {
		gt := gpxTrack{Name: tr.Name}
		for _, seg := range tr.Segments {
			gs := gpxSegment{}
			for _, p := range seg.Points {
				ele := p.Elevation
				gs.Points = append(gs.Points, gpxPoint{
					Lat:       p.Coord.Lat,
					Lon:       p.Coord.Lon,
					Elevation: &ele,
					Time:      formatTime(p.Time),
				})
			}
			gt.Segments = append(gt.Segments, gs)
		}
		doc.Tracks = append(doc.Tracks, gt)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("serialize gpx: %w", err)
	}
	return enc.Close()
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("no timestamp")
	}
	return time.Parse(time.RFC3339, s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
