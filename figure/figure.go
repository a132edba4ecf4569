// Package figure - Subplot grids of images.
//
// A Figure is a grid of titled image panels rendered with gonum/plot. It can
// be written to PNG or shown in an OpenCV window.
package figure

import (
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DefaultCellSize is the side of one panel in pixels.
const DefaultCellSize = 256

type panel struct {
	img   image.Image
	title string
}

// Figure is a rows x cols grid of image panels.
type Figure struct {
	Title    string
	Rows     int
	Cols     int
	CellSize int
	panels   [][]*panel
}

// New creates an empty figure.
//
// Arguments:
//   - title: The figure title, shown above the grid.
//   - rows: Number of panel rows.
//   - cols: Number of panel columns.
//
// Returns:
//   - *Figure: The figure.
//
// @example
// fig := figure.New("saliency", 2, len(indices))
func New(title string, rows, cols int) *Figure {
	panels := make([][]*panel, rows)
	for r := range panels {
		panels[r] = make([]*panel, cols)
	}
	return &Figure{
		Title:    title,
		Rows:     rows,
		Cols:     cols,
		CellSize: DefaultCellSize,
		panels:   panels,
	}
}

// Set places an image in a panel.
func (f *Figure) Set(row, col int, img image.Image, title string) error {
	if row < 0 || row >= f.Rows || col < 0 || col >= f.Cols {
		return errors.Errorf("panel (%d, %d) outside %dx%d figure", row, col, f.Rows, f.Cols)
	}
	if img == nil {
		return errors.Errorf("panel (%d, %d): nil image", row, col)
	}
	f.panels[row][col] = &panel{img: img, title: title}
	return nil
}

// Size returns the rendered size in pixels.
func (f *Figure) Size() (width, height int) {
	return f.Cols * f.CellSize, f.Rows * f.CellSize
}

// Render draws the figure onto a new canvas.
//
// Returns:
//   - *vgimg.Canvas: The canvas, one point per pixel.
//   - error: An error if the figure has no panels.
func (f *Figure) Render() (*vgimg.Canvas, error) {
	if f.Rows <= 0 || f.Cols <= 0 {
		return nil, errors.Errorf("empty %dx%d figure", f.Rows, f.Cols)
	}

	width, height := f.Size()
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(width), vg.Length(height)),
		vgimg.UseDPI(72),
	)
	dc := draw.New(c)

	if f.Title != "" {
		title := plot.New().Title.TextStyle
		rect := title.Rectangle(f.Title)
		dc.FillText(title, vg.Point{X: dc.Center().X, Y: dc.Max.Y}, f.Title)
		dc.Max.Y -= rect.Size().Y + vg.Millimeter
	}

	plots := make([][]*plot.Plot, f.Rows)
	for r, row := range f.panels {
		plots[r] = make([]*plot.Plot, f.Cols)
		for col, p := range row {
			if p == nil {
				continue
			}
			plots[r][col] = panelPlot(p)
		}
	}

	tiles := draw.Tiles{
		Rows: f.Rows,
		Cols: f.Cols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for col, p := range plots[r] {
			if p != nil {
				p.Draw(canvases[r][col])
			}
		}
	}
	return c, nil
}

// Image renders the figure to an image.
func (f *Figure) Image() (image.Image, error) {
	c, err := f.Render()
	if err != nil {
		return nil, err
	}
	return c.Image(), nil
}

// SavePNG renders the figure and writes it to path, creating parent
// directories as needed.
func (f *Figure) SavePNG(path string) error {
	c, err := f.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer out.Close()

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(out); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return out.Close()
}

// panelPlot shows one image filling its data area with hidden axes.
func panelPlot(p *panel) *plot.Plot {
	pl := plot.New()
	pl.Title.Text = p.title
	pl.HideAxes()

	b := p.img.Bounds()
	pl.Add(plotter.NewImage(p.img, 0, 0, float64(b.Dx()), float64(b.Dy())))
	return pl
}
