// Package camera exposes triggered scientific cameras over HTTP
package camera

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/astrogo/fitsio"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/imgrec"
)

// PictureTaker describes a camera that is armed, triggered externally, and
// then read out
type PictureTaker interface {
	// Arm makes the camera wait for a trigger
	Arm() error

	// GetImage returns the frame captured since Arm
	GetImage() (*image.Gray16, error)
}

// MetadataMaker can produce an array of FITS cards
type MetadataMaker interface {
	// CollectHeaderMetadata produces an array of FITS cards
	CollectHeaderMetadata() []fitsio.Card
}

// HTTPPicture injects /arm and /image into a route table for a picture taker.
// If rec is not nil and enabled, every FITS image served is also saved.
func HTTPPicture(p PictureTaker, table generichttp.RouteTable, rec *imgrec.Recorder) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/arm"}] = generichttp.Action(p.Arm)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/image"}] = GetFrame(p, rec)
}

// gray8 scales a 16 bit image to 8 bits for lossy formats
func gray8(img *image.Gray16) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = byte(img.Gray16At(x, y).Y >> 8)
		}
	}
	return out
}

// GetFrame reads out the camera and returns the image on a GET request.
//
// the format is given by the fmt query parameter, one of fits (default), png
// or jpg.  png and jpg are scaled to 8 bits.
func GetFrame(p PictureTaker, rec *imgrec.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("fmt")
		if format == "" {
			format = "fits"
		}
		if format != "fits" && format != "png" && format != "jpg" {
			http.Error(w, fmt.Sprintf("format %q must be fits, png or jpg", format), http.StatusBadRequest)
			return
		}
		img, err := p.GetImage()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		switch format {
		case "jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, gray8(img), nil)
		case "png":
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, gray8(img))
		case "fits":
			cards := []fitsio.Card{}
			if carder, ok := p.(MetadataMaker); ok {
				cards = carder.CollectHeaderMetadata()
			}
			if rec != nil && rec.Enabled && rec.Root != "" {
				if _, err = rec.Save(r.URL.Query().Get("name"), cards, img); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
			}
			hdr := w.Header()
			hdr.Set("Content-Type", "image/fits")
			hdr.Set("Content-Disposition", "attachment; filename=image.fits")
			err = imgrec.WriteFITS(w, cards, img)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}
