// Package flagx lets several configuration layers share os.Args: each layer
// keeps only the flags it owns and parses them with its own FlagSet.
package flagx

import (
	"flag"
	"strings"
)

// Owned lists the flags a configuration layer understands.
// Value flags take an argument ("-d dsn" or "-d=dsn"); Bool flags never
// consume the following token.
type Owned struct {
	Value []string
	Bool  []string
}

// FilterArgs keeps only allowedFlags (all treated as value flags) and their values.
func FilterArgs(args []string, allowedFlags []string) []string {
	return Filter(args, Owned{Value: allowedFlags})
}

// Filter returns the subset of args that belongs to owned, preserving order.
//
// Supported forms: "-f value", "-f=value" and, for bool flags, a bare "-f".
// A token starting with "-" is never taken as a value.
func Filter(args []string, owned Owned) []string {
	values := make(map[string]struct{}, len(owned.Value))
	for _, f := range owned.Value {
		values[f] = struct{}{}
	}
	bools := make(map[string]struct{}, len(owned.Bool))
	for _, f := range owned.Bool {
		bools[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			_, isValue := values[name]
			_, isBool := bools[name]
			if isValue || isBool {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := bools[arg]; ok {
			filtered = append(filtered, arg)
			continue
		}

		if _, ok := values[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigFile extracts the JSON config path given with -c or -config.
// Returns "" when neither is present; the last occurrence wins.
func ConfigFile(args []string) string {
	var config string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return config
}
