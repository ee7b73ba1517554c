package mmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Loader decodes model and motion files. It holds no decoding state and can be
// used from several goroutines.
type Loader struct {
	logger *zap.Logger
}

// NewLoader returns a Loader that logs to logger. A nil logger discards logs.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// FormatFromPath selects PMD for the .pmd extension and PMX for everything else.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".pmd") {
		return FormatPMD
	}
	return FormatPMX
}

// Load reads a .pmd or .pmx file.
func (l *Loader) Load(path string) (*Model, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	start := time.Now()
	m, err := l.Parse(bufio.NewReader(r), FormatFromPath(path))
	if err != nil {
		l.logger.Warn("model load failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("mmd: load %s: %w", path, err)
	}
	l.logger.Info("model loaded",
		zap.String("path", path),
		zap.Stringer("format", m.Format),
		zap.String("name", m.Name),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("indices", len(m.Indices)),
		zap.Int("materials", len(m.Materials)),
		zap.Int("bones", len(m.Bones)),
		zap.Int("morphs", len(m.Morphs)),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

// Parse decodes a model stream of the given format.
func (l *Loader) Parse(r io.Reader, format Format) (*Model, error) {
	if format == FormatPMD {
		p := NewPMDParser(r)
		p.logger = l.logger
		doc, err := p.Parse()
		if err != nil {
			return nil, err
		}
		return FromPMD(doc), nil
	}
	p := NewPMXParser(r)
	p.logger = l.logger
	doc, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return FromPMX(doc), nil
}

// LoadMotion reads a .vmd file.
func (l *Loader) LoadMotion(path string) (*Animation, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	anim, err := l.ParseMotion(bufio.NewReader(r))
	if err != nil {
		l.logger.Warn("motion load failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("mmd: load %s: %w", path, err)
	}
	l.logger.Info("motion loaded",
		zap.String("path", path),
		zap.String("name", anim.Name),
		zap.Bool("camera", anim.IsCamera),
		zap.Int("bone frames", len(anim.Bone)),
		zap.Int("morph frames", len(anim.Morph)))
	return anim, nil
}

// ParseMotion decodes a VMD stream.
func (l *Loader) ParseMotion(r io.Reader) (*Animation, error) {
	p := NewVMDParser(r)
	p.logger = l.logger
	return p.Parse()
}

// Load reads a model file without logging.
func Load(path string) (*Model, error) {
	return NewLoader(nil).Load(path)
}

// LoadMotion reads a motion file without logging.
func LoadMotion(path string) (*Animation, error) {
	return NewLoader(nil).LoadMotion(path)
}

// Parse decodes a model stream without logging.
func Parse(r io.Reader, format Format) (*Model, error) {
	return NewLoader(nil).Parse(r, format)
}

// ParseMotion decodes a motion stream without logging.
func ParseMotion(r io.Reader) (*Animation, error) {
	return NewLoader(nil).ParseMotion(r)
}
