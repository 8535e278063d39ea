// Package engineconfig loads engine settings from a TOML file, the
// way cmd/gprobe/config.go loads a node's configuration: exact
// Go-field-name TOML keys (no snake_case translation) and a
// MissingField hook that turns an unrecognized key into a decode
// error instead of silently ignoring it.
package engineconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/naoina/toml"

	"github.com/kristofer/scriptvm/pkg/errs"
)

// Settings is the engine's full configuration surface (spec §4.3 "Call
// depth", §4.8 "Soft/hard error", §9 "GC"): how deep a call stack may
// grow before CallDepthLimit fires, which error scheme Syscall/Rpc
// default to, and the thresholds pkg/gcheap's Arena.Collect is driven
// at.
type Settings struct {
	MaxCallDepth int

	// SyscallErrorScheme and RpcErrorScheme are "hard" or "soft"
	// (case-insensitive), matching errs.Scheme's two variants.
	SyscallErrorScheme string
	RpcErrorScheme     string

	GC GCSettings
}

// GCSettings controls when a host should call Arena.Collect: either
// after every N allocations, or left at zero to collect only when the
// host chooses to (spec §9 "Collection is never automatic").
type GCSettings struct {
	CollectEveryNAllocs int
}

// Default is a 1024-deep call stack (spec.md's stated default), Hard
// error schemes for both Syscall and Rpc (spec.md states no default
// scheme; see DESIGN.md), and GC left to the host's discretion.
var Default = Settings{
	MaxCallDepth:       1024,
	SyscallErrorScheme: "hard",
	RpcErrorScheme:     "hard",
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field %q is not defined in %s", field, rt.String())
	},
}

// Load reads and decodes a TOML settings file, starting from Default
// so an omitted section keeps its default value rather than zeroing
// out.
func Load(path string) (Settings, error) {
	cfg := Default
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		var lineErr *toml.LineError
		if errors.As(err, &lineErr) {
			return Settings{}, fmt.Errorf("%s, %w", path, err)
		}
		return Settings{}, err
	}
	return cfg, nil
}

// ErrorScheme parses a "hard"/"soft" setting into errs.Scheme, defaulting
// to Hard on anything else (including an empty string), matching
// Default's own choice.
func ErrorScheme(s string) errs.Scheme {
	if strings.EqualFold(s, "soft") {
		return errs.Soft
	}
	return errs.Hard
}
