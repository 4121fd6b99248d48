// Package version exposes build information stamped at link time via
// -ldflags. Defaults identify an untagged development build.
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitRelease is the release tag, e.g. "v0.3.0".
	GitRelease = "dev"
	// GitCommit is the short commit hash the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit date of GitCommit.
	GitCommitDate = "unknown"
)

// GoInfo describes the toolchain and platform of the build.
var GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
