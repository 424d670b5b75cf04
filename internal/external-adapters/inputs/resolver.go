package inputs

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
)

// Source provides raw option values
type Source interface {
	Name() string
	Lookup(option string) (string, bool)
}

// Resolver returns, for each option, the first non-empty value among its
// sources in order.
type Resolver struct {
	sources []Source
}

// NewResolver creates a resolver consulting sources in the given order
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Lookup returns the value of option and the name of the source that provided it
func (r *Resolver) Lookup(option string) (value, source string, ok bool) {
	for _, s := range r.sources {
		if v, found := s.Lookup(option); found && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), s.Name(), true
		}
	}
	return "", "", false
}

// String returns the resolved value of option, or ""
func (r *Resolver) String(option string) string {
	v, _, _ := r.Lookup(option)
	return v
}

// Bool parses the resolved value of option. Unset means false.
func (r *Resolver) Bool(option string) (bool, error) {
	v, source, ok := r.Lookup(option)
	if !ok {
		return false, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("%s (from %s): %q is not a boolean", option, source, v)
	}
	return b, nil
}

// mapSource serves values from a fixed map (config file, defaults)
type mapSource struct {
	name   string
	values map[string]string
}

// NewMapSource wraps values keyed by option name
func NewMapSource(name string, values map[string]string) Source {
	return &mapSource{name: name, values: values}
}

func (m *mapSource) Name() string { return m.name }

func (m *mapSource) Lookup(option string) (string, bool) {
	v, ok := m.values[option]
	return v, ok
}

// actionsSource reads workflow inputs from INPUT_<NAME> environment variables
type actionsSource struct {
	getenv func(string) string
}

// NewActionsSource reads workflow inputs through getenv (os.Getenv in production)
func NewActionsSource(getenv func(string) string) Source {
	return &actionsSource{getenv: getenv}
}

func (a *actionsSource) Name() string { return "workflow input" }

// Lookup checks INPUT_FAIL-ON as the runner sets it, then INPUT_FAIL_ON for
// environments that cannot export hyphenated names.
func (a *actionsSource) Lookup(option string) (string, bool) {
	name := "INPUT_" + strings.ToUpper(strings.ReplaceAll(option, " ", "_"))
	for _, key := range []string{name, strings.ReplaceAll(name, "-", "_")} {
		if v := a.getenv(key); v != "" {
			return v, true
		}
	}
	return "", false
}

// flagSource serves flags the user set explicitly
type flagSource struct {
	flags *pflag.FlagSet
}

// NewFlagSource exposes explicitly set flags of fs. Flag defaults are ignored
// so that lower-priority sources still apply.
func NewFlagSource(fs *pflag.FlagSet) Source {
	return &flagSource{flags: fs}
}

func (f *flagSource) Name() string { return "flag" }

func (f *flagSource) Lookup(option string) (string, bool) {
	flag := f.flags.Lookup(option)
	if flag == nil || !flag.Changed {
		return "", false
	}
	return flag.Value.String(), true
}
