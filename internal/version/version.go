package version

import "runtime/debug"

var (
	Version = "0.1.0"
	Commit  = ""
)

// Resolve returns Version, suffixed with the VCS revision when the binary
// was built from a source checkout.
func Resolve() string {
	info, _ := debug.ReadBuildInfo()
	return resolveVersion(Version, Commit, info)
}

func resolveVersion(base, commit string, info *debug.BuildInfo) string {
	if base == "" {
		base = "0.0.0"
	}

	revision, modified := vcsState(info)
	if commit != "" {
		revision = commit
	}
	if revision == "" {
		return base
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	if modified {
		revision += "-dirty"
	}
	return base + "-" + revision
}

func vcsState(info *debug.BuildInfo) (string, bool) {
	if info == nil {
		return "", false
	}

	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	return revision, modified
}
