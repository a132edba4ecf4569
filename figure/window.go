package figure

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Show displays img in a window named name and blocks until a key is pressed.
func Show(name string, img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "convert figure")
	}
	defer mat.Close()

	window := gocv.NewWindow(name)
	defer window.Close()

	window.IMShow(mat)
	window.WaitKey(0)
	return nil
}

// ShowFigure renders f and displays it.
func ShowFigure(f *Figure) error {
	img, err := f.Image()
	if err != nil {
		return err
	}
	return Show(f.Title, img)
}
