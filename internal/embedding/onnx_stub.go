//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/mensetsu/internal/models"
)

// ONNXEmbedder is unavailable without CGO (see onnx.go).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", models.ErrConfig)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: ONNX embedder unavailable", models.ErrEmbedding)
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: ONNX embedder unavailable", models.ErrEmbedding)
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
