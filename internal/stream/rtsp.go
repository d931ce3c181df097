//go:build cv
// +build cv

package stream

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// rtspSource wraps an OpenCV capture handle. Only available when building
// with the 'cv' build tag.
type rtspSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenRTSP connects to an RTSP (or any OpenCV-supported) stream URL.
func OpenRTSP(url string) (Source, error) {
	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s: %w", url, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("stream %s opened but is not readable", url)
	}
	return &rtspSource{capture: capture, mat: gocv.NewMat()}, nil
}

func (s *rtspSource) Read() (image.Image, bool) {
	if !s.capture.Read(&s.mat) || s.mat.Empty() {
		return nil, false
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, false
	}
	return img, true
}

func (s *rtspSource) Close() error {
	s.mat.Close()
	return s.capture.Close()
}
