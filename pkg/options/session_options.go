package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SessionOptions)(nil)

// SessionOptions configures sign-in and credential persistence.
type SessionOptions struct {
	// Username and Password are used when no persisted credential restores a session.
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`

	// Persist keeps the credential in a SQLite database at DBPath.
	Persist bool   `json:"persist" mapstructure:"persist"`
	DBPath  string `json:"db-path" mapstructure:"db-path"`

	// ExpiryCheck is how often the credential expiry is checked.
	ExpiryCheck time.Duration `json:"expiry-check" mapstructure:"expiry-check"`
}

func NewSessionOptions() *SessionOptions {
	return &SessionOptions{
		Persist:     true,
		DBPath:      "campustrack.db",
		ExpiryCheck: time.Minute,
	}
}

func (o *SessionOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.Persist && o.DBPath == "" {
		errs = append(errs, errors.New("--session.db-path is required when --session.persist is set"))
	}
	if (o.Username == "") != (o.Password == "") {
		errs = append(errs, errors.New("--session.username and --session.password must be given together"))
	}
	if o.ExpiryCheck <= 0 {
		errs = append(errs, errors.New("--session.expiry-check must be positive"))
	}
	return errs
}

func (o *SessionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Username, "session.username", o.Username, "Username or email to sign in with when no session can be restored.")
	fs.StringVar(&o.Password, "session.password", o.Password, "Password to sign in with.")
	fs.BoolVar(&o.Persist, "session.persist", o.Persist, "Persist the credential between runs.")
	fs.StringVar(&o.DBPath, "session.db-path", o.DBPath, "SQLite database file holding the persisted credential.")
	fs.DurationVar(&o.ExpiryCheck, "session.expiry-check", o.ExpiryCheck, "How often to check whether the credential has expired.")
}
