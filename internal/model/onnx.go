package model

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXBackend runs an exported detector in-process through onnxruntime.
type ONNXBackend struct {
	modelPath    string
	metadataPath string
	libraryPath  string

	// mu serializes inference; the session reads and writes shared tensors.
	mu           sync.Mutex
	envReady     bool
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	boxesTensor  *ort.Tensor[float32]
	scoresTensor *ort.Tensor[float32]
}

func NewONNXBackend(modelPath, metadataPath, libraryPath string) *ONNXBackend {
	return &ONNXBackend{
		modelPath:    modelPath,
		metadataPath: metadataPath,
		libraryPath:  libraryPath,
	}
}

func (s *ONNXBackend) Name() string { return "onnx" }

func (s *ONNXBackend) Load() error {
	metadata, err := readMetadata(s.metadataPath)
	if err != nil {
		return err
	}

	if s.libraryPath != "" {
		ort.SetSharedLibraryPath(s.libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	s.envReady = true

	s.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	s.boxesTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(metadata.BoxesShape...))
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create boxes tensor: %w", err)
	}

	s.scoresTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(metadata.ScoresShape...))
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create scores tensor: %w", err)
	}

	s.session, err = ort.NewAdvancedSession(s.modelPath,
		[]string{metadata.InputName}, []string{metadata.BoxesName, metadata.ScoresName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.boxesTensor, s.scoresTensor},
		nil)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	s.Metadata = *metadata
	return nil
}

func (s *ONNXBackend) PredictFile(ctx context.Context, path string, width, height int) ([]BoundingBox, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	inH, inW := int(s.Metadata.InputShape[2]), int(s.Metadata.InputShape[3])
	inputData := preprocess(img, inW, inH)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(s.inputTensor.GetData(), inputData)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scaleX := float64(width) / float64(inW)
	scaleY := float64(height) / float64(inH)
	return postprocess(s.boxesTensor.GetData(), s.scoresTensor.GetData(),
		scaleX, scaleY, s.Metadata.ScoreThreshold, firstClass(s.Metadata.Classes)), nil
}

func (s *ONNXBackend) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.boxesTensor != nil {
		s.boxesTensor.Destroy()
		s.boxesTensor = nil
	}
	if s.scoresTensor != nil {
		s.scoresTensor.Destroy()
		s.scoresTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.envReady {
		ort.DestroyEnvironment()
		s.envReady = false
	}
}

func readMetadata(path string) (*Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if len(metadata.InputShape) != 4 || metadata.InputShape[1] != 3 {
		return nil, fmt.Errorf("input shape must be [1,3,H,W], got %v", metadata.InputShape)
	}
	if len(metadata.BoxesShape) != 3 || metadata.BoxesShape[2] != 4 {
		return nil, fmt.Errorf("boxes shape must be [1,N,4], got %v", metadata.BoxesShape)
	}
	if len(metadata.ScoresShape) != 2 || metadata.ScoresShape[1] != metadata.BoxesShape[1] {
		return nil, fmt.Errorf("scores shape must be [1,N] matching boxes, got %v", metadata.ScoresShape)
	}
	if metadata.InputName == "" || metadata.BoxesName == "" || metadata.ScoresName == "" {
		return nil, fmt.Errorf("metadata must name the input, boxes and scores tensors")
	}
	return &metadata, nil
}

// preprocess resizes img to the model input and packs it as CHW float32 in [0,1].
func preprocess(img image.Image, width, height int) []float32 {
	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)

	bounds := resized.Bounds()
	plane := width * height
	inputData := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*width + x
			inputData[pixelIndex] = float32(r) / 65535.0
			inputData[plane+pixelIndex] = float32(g) / 65535.0
			inputData[2*plane+pixelIndex] = float32(b) / 65535.0
		}
	}

	return inputData
}

// postprocess converts padded [N,4] boxes in model-input pixels to raster pixels.
func postprocess(boxes, scores []float32, scaleX, scaleY float64, threshold float32, label string) []BoundingBox {
	n := len(scores)
	if len(boxes)/4 < n {
		n = len(boxes) / 4
	}

	out := make([]BoundingBox, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] <= 0 || scores[i] < threshold {
			continue
		}
		b := boxes[i*4 : i*4+4]
		out = append(out, BoundingBox{
			XMin:  float64(b[0]) * scaleX,
			YMin:  float64(b[1]) * scaleY,
			XMax:  float64(b[2]) * scaleX,
			YMax:  float64(b[3]) * scaleY,
			Score: float64(scores[i]),
			Label: label,
		})
	}
	return out
}

func firstClass(classes []string) string {
	if len(classes) == 0 {
		return ""
	}
	return classes[0]
}
