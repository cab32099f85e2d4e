package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/junbin-yang/coapcore/pkg/utils/logger"
	"gopkg.in/yaml.v2"
)

var (
	APPNAME    string = "coapcore"
	VERSION    string = "undefined"
	BUILD_TIME string = "undefined"
	GO_VERSION string = "undefined"
)

// Config is the on-disk configuration for the CoAP server and OIC client
// binaries: where to listen, how to identify this device, a network
// interface name, and how to log.
type Config struct {
	ListenAddr string
	DeviceID   string
	DeviceName string
	Interface  string // loaded but not applied: groups are joined on every up multicast interface
	Logger     struct {
		Dir    string
		Level  string
		Rotate bool
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stdout, APPNAME+", version: "+VERSION+" (built at "+BUILD_TIME+") "+GO_VERSION)
		flag.PrintDefaults()
	}
	flag.Parse()
}

// Parse loads the configuration from "<executable dir>/<APPNAME>.yml",
// falling back to "/etc/<APPNAME>.yml", and wires the logger per its
// Logger section.
func Parse() *Config {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}

	cfile := filepath.Dir(ex) + "/" + APPNAME + ".yml"
	if _, err := os.Stat(cfile); os.IsNotExist(err) {
		cfile = "/etc/" + APPNAME + ".yml"
	}

	conf := new(Config)
	data, err := os.ReadFile(cfile)
	if err != nil {
		panic(err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		panic(err)
	}

	defer log.Sync()
	if conf.Logger.Rotate {
		dir := conf.Logger.Dir
		if len(dir) == 0 {
			dir = filepath.Dir(ex)
		}
		out := log.NewProductionRotateByTime(dir + "/" + APPNAME + ".log")
		logger := log.New(out, log.InfoLevel)
		log.ReplaceDefault(logger)
	}
	switch conf.Logger.Level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if conf.ListenAddr == "" {
		conf.ListenAddr = ":5683"
	}

	if err := conf.Validate(); err != nil {
		panic(err)
	}

	return conf
}

// Validate checks conf for the fields the server/client binaries require,
// aggregating every violation found rather than stopping at the first —
// a misconfigured device is usually wrong in more than one field at once,
// and fixing them one panic at a time wastes a deploy cycle per typo.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.DeviceID == "" {
		result = multierror.Append(result, fmt.Errorf("DeviceID must not be empty"))
	}
	if c.DeviceName == "" {
		result = multierror.Append(result, fmt.Errorf("DeviceName must not be empty"))
	}
	switch c.Logger.Level {
	case "", "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("Logger.Level %q is not one of debug/info/warn/error", c.Logger.Level))
	}
	return result.ErrorOrNil()
}
