package converter

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	blezektga "github.com/blezek/tga"
	"github.com/ftrvxmtrx/tga"
	"github.com/oov/psd"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// textureCache decodes each texture file at most once per conversion.
type textureCache struct {
	srcDir   string
	textures map[string]*textureInfo
}

type textureInfo struct {
	name string
	id   *uint32
	img  image.Image
	err  error
}

func newTextureCache(dir string) *textureCache {
	return &textureCache{srcDir: dir, textures: map[string]*textureInfo{}}
}

func (c *textureCache) path(name string) string {
	// model files store Windows separators
	return filepath.Join(c.srcDir, filepath.FromSlash(strings.ReplaceAll(name, "\\", "/")))
}

func (c *textureCache) get(name string) *textureInfo {
	if t, ok := c.textures[name]; ok {
		return t
	}
	t := &textureInfo{name: name}
	c.textures[name] = t
	return t
}

func (c *textureCache) getImage(name string) (image.Image, error) {
	t := c.get(name)
	if t.img != nil || t.err != nil {
		return t.img, t.err
	}

	data, err := os.ReadFile(c.path(t.name))
	if err != nil {
		t.err = err
		return nil, err
	}
	t.img, t.err = decodeImage(data, filepath.Ext(t.name))
	return t.img, t.err
}

type imageDecoder func(io.Reader) (image.Image, error)

func decodePSD(r io.Reader) (image.Image, error) {
	doc, _, err := psd.Decode(r, &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return nil, err
	}
	return doc.Picker, nil
}

func decodeTGA(r io.Reader) (image.Image, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	img, err := tga.Decode(bytes.NewReader(buf.Bytes()))
	if err == nil {
		return img, nil
	}
	// some encoders write tga files the first decoder rejects
	if img, err2 := blezektga.Decode(bytes.NewReader(buf.Bytes())); err2 == nil {
		return img, nil
	}
	return nil, err
}

// The tga package registers an empty magic with image.Decode, which would
// claim every file, so decoders are picked by extension.
var imageDecoders = map[string]imageDecoder{
	".png":  png.Decode,
	".jpg":  jpeg.Decode,
	".jpeg": jpeg.Decode,
	".bmp":  bmp.Decode,
	".gif":  gif.Decode,
	".psd":  decodePSD,
	".tga":  decodeTGA,
}

// sniffOrder is tried for files with an unrecognized extension.
var sniffOrder = []imageDecoder{png.Decode, jpeg.Decode, bmp.Decode, gif.Decode, decodePSD, decodeTGA}

func decodeImage(data []byte, ext string) (image.Image, error) {
	if dec, ok := imageDecoders[strings.ToLower(ext)]; ok {
		return dec(bytes.NewReader(data))
	}
	var firstErr error
	for _, dec := range sniffOrder {
		img, err := dec(bytes.NewReader(data))
		if err == nil {
			return img, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func (c *textureCache) hasAlpha(texture string) bool {
	ext := strings.ToLower(filepath.Ext(texture))
	if texture == "" || ext == ".jpg" || ext == ".jpeg" || ext == ".bmp" {
		return false
	}
	img, err := c.getImage(texture)
	if err != nil {
		return false
	}
	switch img.ColorModel() {
	case color.YCbCrModel, color.CMYKModel, color.GrayModel:
		return false
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

func textureMimeType(texture string) (mime string, reencode bool) {
	switch strings.ToLower(filepath.Ext(texture)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", false
	case ".png":
		return "image/png", false
	}
	// bmp, tga, psd and gif are not valid glTF images
	return "image/png", true
}

func scaleTexture(img image.Image, mime string, scale float32, limit int) (io.Reader, error) {
	rect := img.Bounds()

	if limit > 0 {
		sz := int(float32(rect.Dx()) * scale)
		if h := int(float32(rect.Dy()) * scale); h > sz {
			sz = h
		}
		if sz > limit {
			scale *= float32(limit) / float32(sz)
		}
	}

	if scale != 1.0 {
		w, h := int(float32(rect.Dx())*scale), int(float32(rect.Dy())*scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
		img = dst
	}

	w := new(bytes.Buffer)
	var err error
	if mime == "image/png" {
		err = png.Encode(w, img)
	} else {
		err = jpeg.Encode(w, img, nil)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// addTexture embeds the named texture and returns its glTF texture index.
func (m *modelToGltf) addTexture(texture string) (*uint32, error) {
	t := m.textures.get(texture)
	if t.id != nil {
		return t.id, nil
	}

	mimeType, encode := textureMimeType(texture)
	if m.TextureReCompress || m.TextureScale != 1.0 || m.TextureResolutionLimit > 0 {
		encode = true
	}

	var r io.Reader
	if encode {
		img, err := m.textures.getImage(texture)
		if err != nil {
			return nil, err
		}
		r, err = scaleTexture(img, mimeType, m.TextureScale, m.TextureResolutionLimit)
		if err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(m.textures.path(texture))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	img, err := modeler.WriteImage(m.Document, filepath.Base(texture), mimeType, r)
	if err != nil {
		return nil, err
	}
	m.Buffers[0].ByteLength = uint32(len(m.Buffers[0].Data)) // avoid AddImage bug
	m.Textures = append(m.Textures,
		&gltf.Texture{Sampler: gltf.Index(0), Source: gltf.Index(img)})

	t.id = gltf.Index(uint32(len(m.Textures)) - 1)
	return t.id, nil
}
