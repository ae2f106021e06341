package grid

import (
	"fmt"
	"image"
	// register image decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	perceive "github.com/milosgajdos/go-perceive"
)

// MapMeta is map metadata stored in map_server style YAML files.
type MapMeta struct {
	// Image is path to the map image; relative paths are relative to the YAML file
	Image string `yaml:"image"`
	// Resolution is map resolution in meters per pixel
	Resolution float64 `yaml:"resolution"`
	// Origin is the pose of the lower-left pixel: [x, y, yaw]
	Origin []float64 `yaml:"origin"`
	// Negate inverts the meaning of black and white pixels
	Negate int `yaml:"negate"`
	// OccupiedThresh is the occupancy probability above which a cell is occupied
	OccupiedThresh float64 `yaml:"occupied_thresh"`
	// FreeThresh is the occupancy probability below which a cell is free
	FreeThresh float64 `yaml:"free_thresh"`
}

// Load loads occupancy map described by a map_server style YAML file at path.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read map metadata %s", path)
	}

	meta := MapMeta{
		OccupiedThresh: 0.65,
		FreeThresh:     0.196,
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to parse map metadata %s", path)
	}

	if meta.Image == "" {
		return nil, fmt.Errorf("map metadata %s: missing image", path)
	}

	img := meta.Image
	if !filepath.IsAbs(img) {
		img = filepath.Join(filepath.Dir(path), img)
	}

	return LoadImage(img, meta)
}

// LoadImage builds occupancy map from the image at path using metadata meta.
// Image rows are flipped so that map row 0 is the bottom image row.
func LoadImage(path string, meta MapMeta) (*Map, error) {
	w, h, pix, err := readGray(path)
	if err != nil {
		return nil, err
	}

	var origin perceive.Point
	if len(meta.Origin) >= 2 {
		origin = perceive.Point{X: meta.Origin[0], Y: meta.Origin[1]}
	}

	cells := make([]Occupancy, w*h)
	for row := 0; row < h; row++ {
		j := h - 1 - row
		for i := 0; i < w; i++ {
			v := float64(pix[row*w+i]) / 255.0
			occ := 1.0 - v
			if meta.Negate != 0 {
				occ = v
			}
			switch {
			case occ > meta.OccupiedThresh:
				cells[j*w+i] = Occupied
			case occ < meta.FreeThresh:
				cells[j*w+i] = Free
			default:
				cells[j*w+i] = Unknown
			}
		}
	}

	return NewMap(w, h, meta.Resolution, origin, cells)
}

// LoadProbGrid loads a probability grid from a grayscale image:
// pixel value 255 maps to probability 1, 0 maps to probability 0.
func LoadProbGrid(path string, resolution float64) (*ProbGrid, error) {
	w, h, pix, err := readGray(path)
	if err != nil {
		return nil, err
	}

	data := make([]float64, w*h)
	for row := 0; row < h; row++ {
		j := h - 1 - row
		for i := 0; i < w; i++ {
			data[j*w+i] = float64(pix[row*w+i]) / 255.0
		}
	}

	return NewProbGrid(w, h, resolution, data)
}

// readGray decodes the image at path into 8-bit grayscale pixels stored in row-major order.
func readGray(path string) (int, int, []uint8, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, errors.Wrapf(err, "failed to open image %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, 0, nil, errors.Wrapf(err, "failed to decode image %s", path)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0, 0, nil, fmt.Errorf("empty image %s", path)
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return w, h, gray.Pix, nil
}
