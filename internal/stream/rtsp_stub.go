//go:build !cv
// +build !cv

package stream

import "fmt"

// OpenRTSP is a stub implementation when OpenCV support is disabled
// Build with -tags=cv to enable RTSP stream capture
func OpenRTSP(url string) (Source, error) {
	return nil, fmt.Errorf("OpenCV support not enabled: rebuild with -tags=cv to enable RTSP stream capture")
}
