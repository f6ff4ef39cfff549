package imgrec

import (
	"errors"
	"image"
	"io"

	"github.com/astrogo/fitsio"
)

// ErrNoImages is returned by WriteFITS when given nothing to write
var ErrNoImages = errors.New("no images to write")

// ErrShape is returned by WriteFITS when frames differ in size
var ErrShape = errors.New("all frames must have the same size")

// WriteFITS streams a 16-bit FITS file to w.  More than one image makes a
// data cube with frames along the third axis.
//
// FITS has no unsigned 16-bit type; pixels are stored offset by 32768 with
// BZERO set so readers recover the unsigned values.
func WriteFITS(w io.Writer, metadata []fitsio.Card, imgs ...*image.Gray16) error {
	if len(imgs) == 0 {
		return ErrNoImages
	}
	b := imgs[0].Bounds()
	width, height := b.Dx(), b.Dy()
	for _, img := range imgs[1:] {
		if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
			return ErrShape
		}
	}
	metadata = append(metadata,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if len(imgs) > 1 {
		dims = append(dims, len(imgs))
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}

	ints := make([]int16, 0, width*height*len(imgs))
	for _, img := range imgs {
		ints = appendOffset(ints, img)
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// appendOffset appends the pixels of img, row major, shifted into int16 range
func appendOffset(dst []int16, img *image.Gray16) []int16 {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			// Gray16 is big endian
			u := uint16(row[2*x])<<8 | uint16(row[2*x+1])
			dst = append(dst, int16(int32(u)-32768))
		}
	}
	return dst
}
