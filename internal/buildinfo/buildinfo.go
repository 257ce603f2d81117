// Package buildinfo reports the running binary's version, set via -ldflags -X.
package buildinfo

import "runtime/debug"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info returns the version triple. Without ldflags the VCS stamp of the Go
// toolchain fills commit and build time.
func Info() map[string]string {
    commit, builtAt := Commit, BuiltAt
    if commit == "" || builtAt == "" {
        if bi, ok := debug.ReadBuildInfo(); ok {
            for _, s := range bi.Settings {
                switch s.Key {
                case "vcs.revision":
                    if commit == "" { commit = s.Value }
                case "vcs.time":
                    if builtAt == "" { builtAt = s.Value }
                }
            }
        }
    }
    return map[string]string{
        "version": Version,
        "commit":  commit,
        "builtAt": builtAt,
    }
}
