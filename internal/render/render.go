// Package render draws detection element envelopes per chamber with
// gonum/plot, placing each envelope at its (x, y) offset.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/monitoring"
)

// ErrEmptyChamber is returned when no feature belongs to the requested
// chamber.
var ErrEmptyChamber = errors.New("no detection elements in chamber")

// Size of a saved chamber drawing.
const (
	Width  = 10 * vg.Inch
	Height = 10 * vg.Inch
)

// Ring returns the exterior ring of f translated by its offset and closed
// back onto its first vertex.
func Ring(f feature.Feature) plotter.XYs {
	ring := f.Geometry.Exterior()
	if len(ring) == 0 {
		return nil
	}
	pts := make(plotter.XYs, 0, len(ring)+1)
	for _, v := range ring {
		pts = append(pts, plotter.XY{X: v[0] + f.Properties.X, Y: v[1] + f.Properties.Y})
	}
	return append(pts, pts[0])
}

// centroid is the vertex mean of an open ring; good enough for placing a
// label inside a convex envelope.
func centroid(pts plotter.XYs) plotter.XY {
	var c plotter.XY
	n := len(pts) - 1 // last point repeats the first
	for _, p := range pts[:n] {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(n)
	c.Y /= float64(n)
	return c
}

// ChamberFeatures returns the features of chamber ordered by deid.
func ChamberFeatures(features []feature.Feature, chamber int) []feature.Feature {
	var out []feature.Feature
	for _, f := range features {
		if deid.Chamber(f.DEID()) == chamber {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DEID() < out[j].DEID() })
	return out
}

// ChamberPlot builds one plot with every envelope of chamber, labelled by
// detection element id.
func ChamberPlot(features []feature.Feature, chamber int) (*plot.Plot, error) {
	members := ChamberFeatures(features, chamber)
	if len(members) == 0 {
		return nil, fmt.Errorf("%w %d", ErrEmptyChamber, chamber)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Chamber %d", chamber)
	p.X.Label.Text = "x (cm)"
	p.Y.Label.Text = "y (cm)"
	p.Add(plotter.NewGrid())

	colors := generateColors(len(members))
	labels := plotter.XYLabels{}
	for i, f := range members {
		pts := Ring(f)
		if len(pts) < 2 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", f.DEID(), err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)

		labels.XYs = append(labels.XYs, centroid(pts))
		labels.Labels = append(labels.Labels, strconv.Itoa(f.DEID()))
	}

	if len(labels.XYs) > 0 {
		l, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, err
		}
		p.Add(l)
	}
	return p, nil
}

// WriteChamber renders chamber to w in the given format ("png", "svg",
// "pdf", ...).
func WriteChamber(w io.Writer, features []feature.Feature, chamber int, format string) error {
	p, err := ChamberPlot(features, chamber)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, format)
	if err != nil {
		return fmt.Errorf("chamber %d: %w", chamber, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveChambers writes one file per populated chamber into outputDir and
// returns the paths written. The extension selects the format.
func SaveChambers(features []feature.Feature, outputDir, ext string) ([]string, error) {
	var paths []string
	for chamber := 1; chamber <= deid.Chambers; chamber++ {
		p, err := ChamberPlot(features, chamber)
		if errors.Is(err, ErrEmptyChamber) {
			continue
		}
		if err != nil {
			return paths, err
		}
		path := filepath.Join(outputDir, fmt.Sprintf("chamber_%02d.%s", chamber, ext))
		if err := p.Save(Width, Height, path); err != nil {
			return paths, fmt.Errorf("save chamber %d plot: %w", chamber, err)
		}
		paths = append(paths, path)
	}
	monitoring.Logf("wrote %d chamber plots to %s", len(paths), outputDir)
	return paths, nil
}

// generateColors creates a palette of distinct colors, one per envelope
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(math.Round(rf * 255)), uint8(math.Round(gf * 255)), uint8(math.Round(bf * 255))
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
