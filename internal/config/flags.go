package config

import "flag"

// Flags holds command line overrides. Only flags given on the command line
// are applied.
type Flags struct {
	fs *flag.FlagSet

	Config   string
	LogLevel string
	LogFile  string
	Output   string
	Scale    float64
	Unlit    bool
	Textures bool
	TexDir   string
	TexLimit int
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.Config, "config", "", "path to config file")
	fs.StringVar(&f.LogLevel, "loglevel", "", "log level: debug, info, warn or error")
	fs.StringVar(&f.LogFile, "logfile", "", "also write logs to this file")
	fs.StringVar(&f.Output, "o", "", "write the model as glTF binary (.glb)")
	fs.Float64Var(&f.Scale, "scale", 0, "glTF units per model unit")
	fs.BoolVar(&f.Unlit, "unlit", false, "unlit all materials")
	fs.BoolVar(&f.Textures, "textures", true, "embed base textures")
	fs.StringVar(&f.TexDir, "texdir", "", "texture directory (default: model directory)")
	fs.IntVar(&f.TexLimit, "texlimit", 0, "maximum texture resolution (0: unlimited)")
	return f
}

// Apply copies the flags set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "loglevel":
			cfg.Logging.Level = f.LogLevel
		case "logfile":
			cfg.Logging.LogFile = f.LogFile
		case "o":
			cfg.Export.Output = f.Output
		case "scale":
			cfg.Export.Scale = float32(f.Scale)
		case "unlit":
			cfg.Export.Unlit = f.Unlit
		case "textures":
			cfg.Export.EmbedTextures = f.Textures
		case "texdir":
			cfg.Export.TextureDir = f.TexDir
		case "texlimit":
			cfg.Export.TextureResolutionLimit = f.TexLimit
		}
	})
}

// Load loads the configuration with priority defaults < file < flags.
func (f *Flags) Load() (*Config, error) {
	cfg, err := Load(f.Config)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	return cfg, nil
}
