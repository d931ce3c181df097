package stream

import "image"

// Source yields decoded frames from a video feed.
type Source interface {
	// Read returns the next frame. ok is false when the feed ended or
	// the connection dropped; the driver reconnects in that case.
	Read() (img image.Image, ok bool)
	Close() error
}

// SourceOpener opens a Source for a stream URL. Injected so tests and
// builds without OpenCV can supply their own.
type SourceOpener func(url string) (Source, error)
