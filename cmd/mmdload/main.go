package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/mmdloader/converter"
	"github.com/binzume/mmdloader/internal/config"
	"github.com/binzume/mmdloader/internal/logger"
	"github.com/binzume/mmdloader/mmd"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

var errUsage = errors.New("no input file")

func isMotion(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".vmd")
}

func exportOptions(cfg *config.ExportConfig, input string, log *zap.Logger) *converter.ModelToGLTFOption {
	opt := &converter.ModelToGLTFOption{
		Scale:                  cfg.Scale,
		ForceUnlit:             cfg.Unlit,
		TextureReCompress:      cfg.TextureReCompress,
		TextureScale:           cfg.TextureScale,
		TextureResolutionLimit: cfg.TextureResolutionLimit,
		Logger:                 log,
	}
	if cfg.EmbedTextures {
		opt.TextureDir = cfg.TextureDir
		if opt.TextureDir == "" {
			opt.TextureDir = filepath.Dir(input)
		}
	}
	return opt
}

func saveAsGlb(model *mmd.Model, motions []*mmd.Animation, cfg *config.ExportConfig, input string, log *zap.Logger) error {
	conv := converter.NewModelToGLTFConverter(exportOptions(cfg, input, log))
	doc, err := conv.Convert(model)
	if err != nil {
		return err
	}
	for _, anim := range motions {
		conv.AddAnimation(anim)
	}
	if err := gltf.SaveBinary(doc, cfg.Output); err != nil {
		return err
	}
	log.Info("glb written", zap.String("path", cfg.Output), zap.Int("animations", len(doc.Animations)))
	return nil
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("mmdload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] model.pmx [motion.vmd...]\n", fs.Name())
		fs.PrintDefaults()
	}
	flags := config.RegisterFlags(fs)
	saveConfig := fs.String("saveconfig", "", "write the effective configuration to this file and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.Load()
	if err != nil {
		return err
	}
	if *saveConfig != "" {
		return cfg.SaveTo(*saveConfig)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.FileConfig(), stderr)
	defer log.Sync()
	loader := mmd.NewLoader(log)

	input := fs.Arg(0)
	motionFiles := fs.Args()[1:]
	if isMotion(input) {
		// motions only
		input, motionFiles = "", fs.Args()
	}

	var motions []*mmd.Animation
	for _, f := range motionFiles {
		if !isMotion(f) {
			log.Warn("skipping non-motion input", zap.String("path", f))
			continue
		}
		anim, err := loader.LoadMotion(f)
		if err != nil {
			return err
		}
		motions = append(motions, anim)
	}
	if input == "" {
		return nil
	}

	model, err := loader.Load(input)
	if err != nil {
		return err
	}
	log.Info("model",
		zap.String("name", model.Name),
		zap.String("comment", model.Comment),
		zap.Int("textures", len(model.Textures)),
		zap.Int("rigidBodies", len(model.RigidBodies)),
		zap.Int("joints", len(model.Joints)))

	if cfg.Export.Output == "" {
		return nil
	}
	return saveAsGlb(model, motions, &cfg.Export, input, log)
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
