package version

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/weave-ml/weave/version.Version=0.2.0"
var Version = "0.0.0"
