package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/campustrack/pkg/log"
)

const configFlagName = "config"

func addConfigFlag(fs *pflag.FlagSet, name string, target *string) {
	fs.StringVarP(target, configFlagName, "c", "",
		"Read configuration from specified `FILE`, support JSON, TOML, YAML, HCL, or Java properties formats.\n"+
			"Without it ./"+name+".yaml and $HOME/."+name+"/"+name+".yaml are tried.")
}

// envPrefix turns a command name into its environment prefix, e.g.
// "campustrack" -> "CAMPUSTRACK".
func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// newViper returns a viper instance that resolves flags, then NAME_GROUP_KEY
// environment variables, then the config file.
func newViper(name string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix(name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// readConfig loads file, or the default locations when file is empty. A
// missing default config is not an error. It reports whether a file was read.
func readConfig(v *viper.Viper, name, file string) (bool, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+name))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// watchConfig applies log level changes from the config file while running.
func watchConfig(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Config file changed", "file", e.Name, "op", e.Op.String())
		if level := v.GetString("log.level"); level != "" && !log.SetLevel(level) {
			log.Warn("Ignoring invalid log level", "level", level)
		}
	})
	v.WatchConfig()
}
