package camera

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// EncodeJPEG encodes a frame as JPEG. When maxWidth is positive and smaller
// than the frame, the frame is scaled down first, keeping its aspect ratio.
func EncodeJPEG(f timewarp.Frame, quality, maxWidth int) ([]byte, error) {
	mat, err := MatFromFrame(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	src := mat
	if maxWidth > 0 && f.Width > maxWidth {
		height := f.Height * maxWidth / f.Width
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(mat, &small, image.Pt(maxWidth, height), 0, 0, gocv.InterpolationArea)
		src = small
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
