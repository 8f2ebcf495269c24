// Package env provides access to environment variables that are registered
// up front, so that every process can print a complete description of its
// configuration surface with -help.
package env

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
)

type envflag struct {
	description string
	value       string
}

var (
	env    map[string]envflag
	locked = false
)

// Get returns the value of the given environment variable. It also registers
// the description for HelpString. Get should only be called on package
// initialization; calls at a later point will panic if Lock was called
// before.
func Get(name, defaultValue, description string) string {
	if locked {
		panic("env.Get has to be called on package initialization")
	}

	if env == nil {
		env = map[string]envflag{}
	}

	value, ok := os.LookupEnv(name)
	if !ok {
		value = defaultValue
	}

	if defaultValue != "" {
		description = fmt.Sprintf("%s (default: %q)", description, defaultValue)
	}
	env[name] = envflag{description: description, value: value}

	return value
}

// Lock makes later calls to Get panic. It should be called after the process
// has registered all of its environment variables, before it begins serving.
func Lock() {
	locked = true
}

// HelpString prints a tabular description of every registered variable.
func HelpString() string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString("Environment variables:\n")
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "  %s=%s\t%s\n", name, env[name].value, env[name].description)
	}
	_ = w.Flush()

	return buf.String()
}

// HandleHelpFlag prints HelpString and exits if the first argument is -h,
// -help, or --help.
func HandleHelpFlag() {
	if len(os.Args) < 2 {
		return
	}

	switch os.Args[1] {
	case "-h", "-help", "--help":
		fmt.Print(HelpString())
		os.Exit(0)
	}
}
