package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"pathforge/pkg/source"
)

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !carHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	ID      osm.WayID
	NodeIDs []osm.NodeID
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only ways with every vertex inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter ways to this bounding box
}

// Parse reads an OSM PBF file and returns every car-accessible way as a road
// whose geometry is the way's polyline in (lon, lat) order. Oneway tags are
// ignored; the graph is undirected.
//
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) ([]source.Road, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !isCarAccessible(w.Tags) || len(w.Nodes) < 2 {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{ID: w.ID, NodeIDs: nodeIDs})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	coords := make(map[osm.NodeID]orb.Point, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		coords[n.ID] = orb.Point{n.Lon, n.Lat}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(coords))

	roads, missing, filtered := assembleRoads(ways, coords, opt.BBox, useBBox)

	if missing > 0 {
		log.Printf("Warning: skipped %d ways due to missing node coordinates", missing)
	}
	if filtered > 0 {
		log.Printf("Filtered %d ways outside bounding box", filtered)
	}
	log.Printf("Built %d roads", len(roads))

	return roads, nil
}

// assembleRoads turns ways into polylines. A way with any unresolved node is
// dropped rather than split, and so is a way leaving the bounding box.
func assembleRoads(ways []wayInfo, coords map[osm.NodeID]orb.Point, bbox BBox, useBBox bool) (roads []source.Road, missing, filtered int) {
	roads = make([]source.Road, 0, len(ways))
nextWay:
	for _, w := range ways {
		ls := make(orb.LineString, 0, len(w.NodeIDs))
		for _, id := range w.NodeIDs {
			p, ok := coords[id]
			if !ok {
				missing++
				continue nextWay
			}
			if useBBox && !bbox.Contains(p.Lat(), p.Lon()) {
				filtered++
				continue nextWay
			}
			ls = append(ls, p)
		}
		roads = append(roads, source.Road{
			ID:       strconv.FormatInt(int64(w.ID), 10),
			Geometry: ls,
		})
	}
	return roads, missing, filtered
}

// File is a source.Source reading an OSM PBF extract from disk.
type File struct {
	path string
	opts ParseOptions
}

// NewFile returns a Source for the PBF file at path.
func NewFile(path string, opts ParseOptions) *File {
	return &File{path: path, opts: opts}
}

// Roads parses the file.
func (f *File) Roads(ctx context.Context) ([]source.Road, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open pbf: %w", err)
	}
	defer fh.Close()

	log.Printf("Parsing OSM data from %s...", f.path)
	return Parse(ctx, fh, f.opts)
}

// Close is a no-op; the file is closed when Roads returns.
func (f *File) Close() error { return nil }
