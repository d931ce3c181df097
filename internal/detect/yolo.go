//go:build cv
// +build cv

package detect

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// inputSize is the square network input resolution.
	inputSize = 640
	// scoreFloor discards anchors below this raw score before NMS; the
	// pipeline applies its own, stricter confidence threshold afterwards.
	scoreFloor   = 0.25
	nmsThreshold = 0.45
)

// YOLODetector runs a YOLOv8 ONNX model through the OpenCV DNN module. One
// instance serialises inference internally, so a single detector may be
// shared across callers if needed; the capture pipeline uses it from one
// goroutine anyway.
type YOLODetector struct {
	net gocv.Net
	mu  sync.Mutex
}

// NewYOLODetector loads the ONNX model at modelPath.
func NewYOLODetector(modelPath string) (*YOLODetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load ONNX model %s: empty network", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &YOLODetector{net: net}, nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	return d.net.Close()
}

// Detect runs one inference pass and returns all candidates above the score
// floor, with boxes in the frame's pixel coordinates.
func (d *YOLODetector) Detect(ctx context.Context, img image.Image) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	return parseDetections(out, img.Bounds())
}

// parseDetections decodes a YOLOv8 output tensor (1 x 4+classes x anchors)
// into candidates, applying non-maximum suppression.
func parseDetections(out gocv.Mat, bounds image.Rectangle) ([]Candidate, error) {
	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output tensor rank %d", len(dims))
	}
	channels, anchors := dims[1], dims[2]
	classes := channels - 4
	if classes <= 0 || anchors <= 0 {
		return nil, fmt.Errorf("unexpected output tensor shape %v", dims)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}
	at := func(c, a int) float32 { return data[c*anchors+a] }

	scaleX := float64(bounds.Dx()) / inputSize
	scaleY := float64(bounds.Dy()) / inputSize

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int
	for a := 0; a < anchors; a++ {
		best, bestClass := float32(0), -1
		for c := 0; c < classes; c++ {
			if s := at(4+c, a); s > best {
				best, bestClass = s, c
			}
		}
		if best < scoreFloor {
			continue
		}
		cx, cy := float64(at(0, a)), float64(at(1, a))
		w, h := float64(at(2, a)), float64(at(3, a))
		box := image.Rect(
			bounds.Min.X+int((cx-w/2)*scaleX),
			bounds.Min.Y+int((cy-h/2)*scaleY),
			bounds.Min.X+int((cx+w/2)*scaleX),
			bounds.Min.Y+int((cy+h/2)*scaleY),
		).Intersect(bounds)
		boxes = append(boxes, box)
		scores = append(scores, best)
		classIDs = append(classIDs, bestClass)
	}

	var cands []Candidate
	for _, i := range gocv.NMSBoxes(boxes, scores, scoreFloor, nmsThreshold) {
		cands = append(cands, Candidate{
			Label:      labelFor(classIDs[i]),
			Confidence: float64(scores[i]),
			Box:        boxes[i],
		})
	}
	return cands, nil
}
