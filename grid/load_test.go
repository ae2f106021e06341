package grid

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perceive "github.com/milosgajdos/go-perceive"
)

func writePNG(t *testing.T, path string, w, h int, pix func(x, y int) uint8) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: pix(x, y)})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	// 4x3 image: top-left pixel black (occupied), top-right grey (unknown), rest white (free)
	writePNG(t, filepath.Join(dir, "map.png"), 4, 3, func(x, y int) uint8 {
		switch {
		case x == 0 && y == 0:
			return 0
		case x == 3 && y == 0:
			return 128
		default:
			return 255
		}
	})

	meta := []byte("image: map.png\nresolution: 0.5\norigin: [-1.0, 2.0, 0.0]\nnegate: 0\noccupied_thresh: 0.65\nfree_thresh: 0.196\n")
	yamlPath := filepath.Join(dir, "map.yaml")
	require.NoError(t, os.WriteFile(yamlPath, meta, 0o644))

	m, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(4, m.Width())
	assert.Equal(3, m.Height())
	assert.Equal(0.5, m.Resolution())
	assert.Equal(perceive.Point{X: -1, Y: 2}, m.Origin())
	// image top row is the top map row
	assert.Equal(Occupied, m.At(Cell{I: 0, J: 2}))
	assert.Equal(Unknown, m.At(Cell{I: 3, J: 2}))
	assert.Equal(Free, m.At(Cell{I: 0, J: 0}))
	assert.Equal(10, m.NumFree())

	// file source goes through the same loader
	m, err = FileSource(yamlPath).Map(context.Background())
	assert.NoError(err)
	assert.NotNil(m)
}

func TestLoadErrors(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(err)

	noImage := filepath.Join(dir, "noimage.yaml")
	require.NoError(t, os.WriteFile(noImage, []byte("resolution: 0.5\n"), 0o644))
	_, err = Load(noImage)
	assert.Error(err)

	badImage := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badImage, []byte("image: bad.png\nresolution: 0.5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not an image"), 0o644))
	_, err = Load(badImage)
	assert.Error(err)

	_, err = LoadProbGrid(filepath.Join(dir, "missing.png"), 0.1)
	assert.Error(err)
}

func TestLoadProbGrid(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "prob.png")
	// bottom row is bright
	writePNG(t, path, 3, 3, func(x, y int) uint8 {
		if y == 2 {
			return 255
		}
		return 0
	})

	g, err := LoadProbGrid(path, 0.5)
	require.NoError(t, err)

	p, ok := g.At(0, -0.5)
	assert.True(ok)
	assert.Equal(1.0, p)

	p, ok = g.At(0, 0.5)
	assert.True(ok)
	assert.Equal(0.0, p)
}
