// Package version carries the build identity stamped into the binary.
package version

import "runtime/debug"

// Set at build time:
//
//	go build -ldflags "-X github.com/loglens/loglens/pkg/version.release=1.2.0 \
//	                   -X github.com/loglens/loglens/pkg/version.commit=$(git rev-parse HEAD)"
//
// Without ldflags the commit falls back to the revision the Go toolchain
// embeds, so plain `go build` in a checkout still yields a usable identity.
var (
	release = "0.0.0-dev"
	commit  = ""
)

// Full returns the identity used in logs and the health endpoint,
// e.g. "loglens 1.2.0 (a3f8c2d)".
func Full() string {
	return "loglens " + release + " (" + Commit() + ")"
}

// Release returns the bare release string.
func Release() string {
	return release
}

// Commit resolves the short VCS revision: the ldflags override wins, then the
// toolchain-embedded revision, then "unknown" (go test, tarball builds).
func Commit() string {
	if commit != "" {
		return shortRev(commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shortRev(s.Value)
			}
		}
	}
	return "unknown"
}

func shortRev(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
