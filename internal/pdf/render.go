// Package pdf renders PDF pages to images and extracts embedded text using
// go-fitz.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	xdraw "golang.org/x/image/draw"

	"github.com/inkpipe/inkpipe/internal/domain"
)

// TargetPageWidth is the pixel width rendered pages are normalized to.
const TargetPageWidth = 800

// ImageFormat selects the encoding for rendered pages.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatJPG ImageFormat = "jpg"
)

// RenderOptions controls page rendering.
type RenderOptions struct {
	Format ImageFormat
	// Invert forces color inversion; when false, pages whose mean luminance
	// falls below the auto-invert threshold are still inverted to keep dark
	// scans readable.
	Invert bool
}

// Page holds one rendered, encoded page.
type Page struct {
	Number int
	Data   []byte
}

// RenderPages rasterizes every page of the PDF to grayscale images
// width-normalized to TargetPageWidth and encoded per the options.
func RenderPages(ctx context.Context, pdfBytes []byte, opts RenderOptions) ([]Page, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, domain.ConversionError("failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	pages := make([]Page, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("failed to render page %d", pageNum+1), err)
		}

		gray := toGrayscale(img)
		gray = normalizeWidth(gray, TargetPageWidth)
		if opts.Invert || meanLuminance(gray) < 128.0 {
			invert(gray)
		}

		data, err := encodePage(gray, opts.Format)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("failed to encode page %d", pageNum+1), err)
		}
		pages = append(pages, Page{Number: pageNum + 1, Data: data})
	}
	return pages, nil
}

// ExtractText returns the embedded text of every page joined with newlines.
func ExtractText(pdfBytes []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return "", domain.ConversionError("failed to open PDF", err)
	}
	defer doc.Close()

	var buf bytes.Buffer
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			return "", domain.ConversionError(fmt.Sprintf("failed to extract text from page %d", pageNum+1), err)
		}
		if pageNum > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func toGrayscale(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	xdraw.Draw(gray, bounds, img, bounds.Min, xdraw.Src)
	return gray
}

func normalizeWidth(img *image.Gray, targetWidth int) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	if width <= targetWidth {
		return img
	}
	ratio := float64(targetWidth) / float64(width)
	targetHeight := int(float64(bounds.Dy())*ratio + 0.5)
	if targetHeight < 1 {
		targetHeight = 1
	}
	scaled := image.NewGray(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Over, nil)
	return scaled
}

func meanLuminance(img *image.Gray) float64 {
	if len(img.Pix) == 0 {
		return 0
	}
	var sum uint64
	for _, p := range img.Pix {
		sum += uint64(p)
	}
	return float64(sum) / float64(len(img.Pix))
}

func invert(img *image.Gray) {
	for i, p := range img.Pix {
		img.Pix[i] = 255 - p
	}
}

func encodePage(img *image.Gray, format ImageFormat) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, err
		}
	default:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
