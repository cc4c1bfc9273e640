package main

import (
	"fmt"
	"strconv"
	"strings"
)

// stringList is an accumulator flag for a flag repeated multiple times,
// grounded on tools/runner/flags.go's FileNames.
type stringList []string

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

// configOverrides accumulates `<section>:<key>=<value>` structured config
// values, the same `[<queue name>:]<concurrency level>` split-and-
// accumulate shape as tools/runner/flags.go's ConcurrencyLevels, adapted
// from a single colon split to the two-level section:key=value form. No
// subcommand registers it as a flag: `run` and `rerun` use `-c` for a
// configuration file path.
type configOverrides map[string]map[string]string

func (c *configOverrides) Set(value string) error {
	section, rest, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("-c value must be of the form <section>:<key>=<value>, got %q", value)
	}
	key, val, ok := strings.Cut(rest, "=")
	if !ok {
		return fmt.Errorf("-c value must be of the form <section>:<key>=<value>, got %q", value)
	}
	if *c == nil {
		*c = map[string]map[string]string{}
	}
	if (*c)[section] == nil {
		(*c)[section] = map[string]string{}
	}
	(*c)[section][key] = val
	return nil
}

func (c *configOverrides) String() string { return fmt.Sprint(map[string]map[string]string(*c)) }

// batchOptions accumulates `-b <key>=<value>` batch flags into a typed
// struct as each flag is set; keys other than scheduler, spec, workers and
// option are kept in the raw map.
type batchOptions struct {
	Scheduler string
	Spec      string
	Workers   int
	Passthru  []string
	raw       map[string]string
}

func (b *batchOptions) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("-b value must be of the form <key>=<value>, got %q", value)
	}
	if b.raw == nil {
		b.raw = map[string]string{}
	}
	switch key {
	case "scheduler":
		b.Scheduler = val
	case "spec":
		b.Spec = val
	case "workers":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("-b workers must be an integer, got %q", val)
		}
		b.Workers = n
	case "option":
		b.Passthru = append(b.Passthru, val)
	default:
		b.raw[key] = val
	}
	return nil
}

func (b *batchOptions) String() string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("scheduler=%s spec=%s workers=%d", b.Scheduler, b.Spec, b.Workers)
}

// Enabled reports whether any `-b` flag was given at all.
func (b *batchOptions) Enabled() bool {
	return b.Scheduler != "" || b.Spec != "" || b.Workers != 0 || len(b.Passthru) > 0
}
