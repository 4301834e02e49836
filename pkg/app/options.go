package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the options of every command. Flags
// are grouped into named sets for the help output; Complete fills derived
// defaults and Validate reports everything that is wrong at once.
type NamedFlagSetOptions interface {
	Flags() cliflag.NamedFlagSets
	Complete() error
	Validate() error
}
