package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
)

type greeterOptions struct {
	Greeting string        `mapstructure:"greeting"`
	Interval time.Duration `mapstructure:"interval"`
}

func (o *greeterOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Greeting, "greeter.greeting", o.Greeting, "What to say.")
	fs.DurationVar(&o.Interval, "greeter.interval", o.Interval, "How often to say it.")
}

type testOptions struct {
	Greeter *greeterOptions `mapstructure:"greeter"`

	completed bool
}

func newTestOptions() *testOptions {
	return &testOptions{Greeter: &greeterOptions{Greeting: "hello", Interval: time.Second}}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Greeter.AddFlags(fss.FlagSet("greeter"))
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	errs := []error{}
	if o.Greeter.Greeting == "" {
		errs = append(errs, errors.New("--greeter.greeting must not be empty"))
	}
	if o.Greeter.Interval <= 0 {
		errs = append(errs, errors.New("--greeter.interval must be positive"))
	}
	return utilerrors.NewAggregate(errs)
}

func execute(t *testing.T, name string, opts *testOptions, args ...string) (bool, error) {
	t.Helper()
	ran := false
	a := NewApp(name, "test app",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)
	a.Command().SetArgs(args)
	return ran, a.Command().Execute()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	opts := newTestOptions()
	ran, err := execute(t, "greeter-defaults", opts)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "hello", opts.Greeter.Greeting)
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	cfg := writeConfig(t, "greeter:\n  greeting: hi\n  interval: 5s\n")

	opts := newTestOptions()
	_, err := execute(t, "greeter-config", opts, "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "hi", opts.Greeter.Greeting)
	assert.Equal(t, 5*time.Second, opts.Greeter.Interval)

	opts = newTestOptions()
	_, err = execute(t, "greeter-config", opts, "--config", cfg, "--greeter.greeting", "hey")
	require.NoError(t, err)
	assert.Equal(t, "hey", opts.Greeter.Greeting)
	assert.Equal(t, 5*time.Second, opts.Greeter.Interval)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	cfg := writeConfig(t, "greeter:\n  greeting: hi\n")
	t.Setenv("GREETER_ENV_GREETER_GREETING", "salut")

	opts := newTestOptions()
	_, err := execute(t, "greeter-env", opts, "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "salut", opts.Greeter.Greeting)
}

func TestValidationErrorsAreAggregated(t *testing.T) {
	opts := newTestOptions()
	ran, err := execute(t, "greeter-invalid", opts, "--greeter.greeting", "", "--greeter.interval", "0s")
	require.Error(t, err)
	assert.False(t, ran)
	assert.Contains(t, err.Error(), "greeting must not be empty")
	assert.Contains(t, err.Error(), "interval must be positive")
}

func TestRejectsPositionalArgs(t *testing.T) {
	ran, err := execute(t, "greeter-args", newTestOptions(), "extra")
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "greeter-missing", newTestOptions(), "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "CAMPUSTRACK", envPrefix("campustrack"))
	assert.Equal(t, "GREETER_ENV", envPrefix("greeter-env"))
}
