package common

// Version is set at build time:
//
//	go build -ldflags "-X github.com/siteup/siteup/common.Version=v1.2.3"
var Version = "dev"
