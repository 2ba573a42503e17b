// Package config loads the settings of a multiplex job from defaults, an
// optional mkvmux.yaml and MKVMUX_ environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/deepch/mkvmux/format/mkv"
	"github.com/deepch/mkvmux/interleave"
	"github.com/deepch/mkvmux/mux"
)

const EnvPrefix = "MKVMUX"

// Keys, also used as flag bindings by the command line.
const (
	ClusterMaxDuration   = "cluster.max_duration"
	ClusterMaxSize       = "cluster.max_size"
	WriterCRC            = "writer.crc"
	WriterBufferLimit    = "writer.buffer_limit"
	WriterTimestampScale = "writer.timestamp_scale"
	OutputTitle          = "output.title"
	OutputWritingApp     = "output.writing_app"
	OutputMinFree        = "output.min_free"
	LogLevel             = "log.level"
	MuxIdentifyWorkers   = "mux.identify_workers"
	MuxLace              = "mux.lace"
)

type Cluster struct {
	MaxDuration time.Duration `mapstructure:"max_duration"`
	MaxSize     int           `mapstructure:"max_size"`
}

type Writer struct {
	CRC            bool   `mapstructure:"crc"`
	BufferLimit    int64  `mapstructure:"buffer_limit"`
	TimestampScale uint64 `mapstructure:"timestamp_scale"`
}

type Output struct {
	Title      string `mapstructure:"title"`
	WritingApp string `mapstructure:"writing_app"`
	MinFree    uint64 `mapstructure:"min_free"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Mux struct {
	IdentifyWorkers int `mapstructure:"identify_workers"`
	Lace            int `mapstructure:"lace"`
}

type Config struct {
	Cluster Cluster `mapstructure:"cluster"`
	Writer  Writer  `mapstructure:"writer"`
	Output  Output  `mapstructure:"output"`
	Log     Log     `mapstructure:"log"`
	Mux     Mux     `mapstructure:"mux"`
}

// New returns a viper instance with the defaults and the environment
// bindings in place.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(ClusterMaxDuration, interleave.DefaultMaxDuration)
	v.SetDefault(ClusterMaxSize, interleave.DefaultMaxSize)
	v.SetDefault(WriterCRC, false)
	v.SetDefault(WriterBufferLimit, 0)
	v.SetDefault(WriterTimestampScale, interleave.DefaultTimestampScale)
	v.SetDefault(OutputTitle, "")
	v.SetDefault(OutputWritingApp, mkv.DefaultWritingApp)
	v.SetDefault(OutputMinFree, mkv.DefaultMinFree)
	v.SetDefault(LogLevel, "info")
	v.SetDefault(MuxIdentifyWorkers, mux.DefaultIdentifyWorkers)
	v.SetDefault(MuxLace, 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mkvmux")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.mkvmux", "/etc/mkvmux"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// Load reads file, or the first mkvmux.yaml found on the search path when
// file is empty, and decodes the result. A missing search path file is not
// an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (self *Config) Validate() error {
	switch {
	case self.Cluster.MaxDuration <= 0:
		return errors.Errorf("%s must be positive", ClusterMaxDuration)
	case self.Cluster.MaxSize <= 0:
		return errors.Errorf("%s must be positive", ClusterMaxSize)
	case self.Writer.TimestampScale == 0:
		return errors.Errorf("%s must be positive", WriterTimestampScale)
	case self.Writer.BufferLimit < 0:
		return errors.Errorf("%s must not be negative", WriterBufferLimit)
	case self.Mux.Lace < 0:
		return errors.Errorf("%s must not be negative", MuxLace)
	}
	return nil
}

// Options maps the settings onto a driver configuration.
func (self *Config) Options() mux.Options {
	return mux.Options{
		Cluster: interleave.Limits{
			MaxDuration:    self.Cluster.MaxDuration,
			MaxSize:        self.Cluster.MaxSize,
			TimestampScale: self.Writer.TimestampScale,
		},
		Output: mkv.MuxerOptions{
			TimestampScale: self.Writer.TimestampScale,
			CRC:            self.Writer.CRC,
			BufferLimit:    self.Writer.BufferLimit,
			Title:          self.Output.Title,
			WritingApp:     self.Output.WritingApp,
		},
		Lace:            self.Mux.Lace,
		IdentifyWorkers: self.Mux.IdentifyWorkers,
	}
}
