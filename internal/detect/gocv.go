//go:build gocv

package detect

import (
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// CaptureConfig describes an in-process capture and inference pipeline.
type CaptureConfig struct {
	Camera      string // device index ("0") or stream URL
	Weights     string
	ModelConfig string
	Names       string
	InputSize   int
	MinScore    float64
}

// CaptureSource grabs frames from a camera or stream with OpenCV and runs a
// darknet network on each one.
type CaptureSource struct {
	camera     string
	capture    *gocv.VideoCapture
	net        gocv.Net
	classNames []string
	inputSize  int
	minScore   float32

	mu  sync.Mutex
	img gocv.Mat
	seq uint64
}

// OpenCapture opens the camera and loads the network. Failure to load the
// model or open the camera is fatal to the caller.
func OpenCapture(cfg CaptureConfig) (*CaptureSource, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 416
	}

	net := gocv.ReadNet(cfg.Weights, cfg.ModelConfig)
	if net.Empty() {
		return nil, fmt.Errorf("load network from %s and %s", cfg.Weights, cfg.ModelConfig)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	namesBytes, err := os.ReadFile(cfg.Names)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("read class names: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(namesBytes), "\n") {
		names = append(names, strings.TrimSpace(line))
	}

	var capture *gocv.VideoCapture
	if idx, err := strconv.Atoi(cfg.Camera); err == nil {
		capture, err = gocv.OpenVideoCapture(idx)
		if err != nil {
			net.Close()
			return nil, fmt.Errorf("open camera %d: %w", idx, err)
		}
	} else {
		capture, err = gocv.VideoCaptureFile(cfg.Camera)
		if err != nil {
			net.Close()
			return nil, fmt.Errorf("open stream %s: %w", cfg.Camera, err)
		}
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	return &CaptureSource{
		camera:     cfg.Camera,
		capture:    capture,
		net:        net,
		classNames: names,
		inputSize:  cfg.InputSize,
		minScore:   float32(cfg.MinScore),
		img:        gocv.NewMat(),
	}, nil
}

// Name identifies the source in logs and status output.
func (s *CaptureSource) Name() string { return "gocv:" + s.camera }

// Next grabs and classifies one frame. An unreadable frame is a skip.
func (s *CaptureSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok := s.capture.Read(&s.img); !ok || s.img.Empty() {
		return Frame{}, skipf("camera %s: no frame", s.camera)
	}
	s.seq++
	f := Frame{Seq: s.seq, CapturedAt: time.Now()}
	f.Detections = s.infer(s.img)
	return f, nil
}

func (s *CaptureSource) infer(frame gocv.Mat) []model.Detection {
	size := image.Pt(s.inputSize, s.inputSize)
	blob := gocv.BlobFromImage(frame, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	width := float64(frame.Cols())
	height := float64(frame.Rows())

	var out []model.Detection
	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		scores := row.ColRange(5, row.Cols())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
		classID := maxLoc.X

		if maxVal > s.minScore && classID < len(s.classNames) {
			cx := float64(row.GetFloatAt(0, 0)) * width
			cy := float64(row.GetFloatAt(0, 1)) * height
			w := float64(row.GetFloatAt(0, 2)) * width
			h := float64(row.GetFloatAt(0, 3)) * height
			out = append(out, model.Detection{
				Label:      s.classNames[classID],
				Confidence: float64(maxVal),
				Box:        model.Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
			})
		}

		scores.Close()
		row.Close()
	}
	return out
}

// Close releases the camera and the network.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img.Close()
	s.net.Close()
	return s.capture.Close()
}
