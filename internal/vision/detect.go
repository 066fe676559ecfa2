package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Region is one detected face in the coordinates of the image it was found in.
type Region struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32
}

// Rect returns the bounding box as an integer rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(int(r.BBox[0]), int(r.BBox[1]), int(r.BBox[2]), int(r.BBox[3]))
}

func (r *Region) shift(dx, dy float32) {
	r.BBox[0] += dx
	r.BBox[1] += dy
	r.BBox[2] += dx
	r.BBox[3] += dy
	for i := range r.Landmarks {
		r.Landmarks[i][0] += dx
		r.Landmarks[i][1] += dy
	}
}

const (
	detInputSize    = 640
	detAnchors      = 2
	detNMSThreshold = 0.4
)

// detHead names the det_10g outputs for one feature-map stride.
type detHead struct {
	stride                   int
	scores, boxes, landmarks string
}

var detHeads = []detHead{
	{stride: 8, scores: "448", boxes: "451", landmarks: "454"},
	{stride: 16, scores: "471", boxes: "474", landmarks: "477"},
	{stride: 32, scores: "494", boxes: "497", landmarks: "500"},
}

func (h detHead) cells() int64 {
	side := int64(detInputSize / h.stride)
	return side * side * detAnchors
}

// headTensors holds the output buffers bound to one detHead.
type headTensors struct {
	head                     detHead
	scores, boxes, landmarks *ort.Tensor[float32]
}

// Detector is a RetinaFace det_10g session with preallocated tensors.
// It is not safe for concurrent use.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	heads     []headTensors
	threshold float32
}

// NewDetector loads the det_10g model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	d := &Detector{threshold: threshold}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// the session binds outputs by position: all scores, then boxes, then landmarks
	var scoreNames, boxNames, lmNames []string
	var scoreVals, boxVals, lmVals []ort.Value
	for _, h := range detHeads {
		ht := headTensors{head: h}
		for _, out := range []struct {
			dst  **ort.Tensor[float32]
			cols int64
		}{{&ht.scores, 1}, {&ht.boxes, 4}, {&ht.landmarks, 10}} {
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(h.cells(), out.cols))
			if err != nil {
				d.heads = append(d.heads, ht)
				d.Close()
				return nil, fmt.Errorf("create output tensor for stride %d: %w", h.stride, err)
			}
			*out.dst = t
		}
		d.heads = append(d.heads, ht)

		scoreNames = append(scoreNames, h.scores)
		boxNames = append(boxNames, h.boxes)
		lmNames = append(lmNames, h.landmarks)
		scoreVals = append(scoreVals, ht.scores)
		boxVals = append(boxVals, ht.boxes)
		lmVals = append(lmVals, ht.landmarks)
	}

	names := append(append(scoreNames, boxNames...), lmNames...)
	values := append(append(scoreVals, boxVals...), lmVals...)
	d.session, err = ort.NewAdvancedSession(modelPath, []string{"input.1"}, names, []ort.Value{d.input}, values, opts)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect runs face detection on img and returns regions in img's
// coordinates, highest confidence first.
func (d *Detector) Detect(img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, nil
	}

	copy(d.input.GetData(), preprocessForDetection(img, detInputSize, detInputSize))
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	var regions []Region
	for _, ht := range d.heads {
		regions = decodeHead(regions, ht.head, ht.scores.GetData(), ht.boxes.GetData(), ht.landmarks.GetData(),
			d.threshold, bounds.Dx(), bounds.Dy())
	}
	regions = nms(regions, detNMSThreshold)

	if bounds.Min != (image.Point{}) {
		for i := range regions {
			regions[i].shift(float32(bounds.Min.X), float32(bounds.Min.Y))
		}
	}
	return regions, nil
}

// decodeHead appends the anchors of one stride scoring at least threshold.
// Box and landmark offsets are in stride units from the anchor point and
// are scaled from the model input back to a width x height image.
func decodeHead(dst []Region, head detHead, scores, boxes, landmarks []float32, threshold float32, width, height int) []Region {
	side := detInputSize / head.stride
	st := float32(head.stride)
	w, h := float32(width), float32(height)
	sx := w / detInputSize
	sy := h / detInputSize

	for i := range scores {
		if i >= side*side*detAnchors {
			break
		}
		if scores[i] < threshold {
			continue
		}
		cell := i / detAnchors
		ax := float32(cell%side) * st
		ay := float32(cell/side) * st

		b := boxes[i*4 : i*4+4]
		r := Region{
			Confidence: scores[i],
			BBox: [4]float32{
				clamp((ax-b[0]*st)*sx, 0, w),
				clamp((ay-b[1]*st)*sy, 0, h),
				clamp((ax+b[2]*st)*sx, 0, w),
				clamp((ay+b[3]*st)*sy, 0, h),
			},
		}
		lm := landmarks[i*10 : i*10+10]
		for p := range r.Landmarks {
			r.Landmarks[p] = [2]float32{(ax + lm[p*2]*st) * sx, (ay + lm[p*2+1]*st) * sy}
		}
		dst = append(dst, r)
	}
	return dst
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, ht := range d.heads {
		for _, t := range []*ort.Tensor[float32]{ht.scores, ht.boxes, ht.landmarks} {
			if t != nil {
				t.Destroy()
			}
		}
	}
}

// nms sorts by confidence and drops any region overlapping a stronger one
// by more than threshold IoU.
func nms(regions []Region, threshold float32) []Region {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Confidence > regions[j].Confidence
	})

	kept := regions[:0]
	for _, r := range regions {
		suppressed := false
		for _, k := range kept {
			if iou(k.BBox, r.BBox) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, r)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	iw := min(a[2], b[2]) - max(a[0], b[0])
	ih := min(a[3], b[3]) - max(a[1], b[1])
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
