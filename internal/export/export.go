// Package export replays a stroke list into PNG or PDF documents.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/okultahta/tahta-server/internal/render"
	"github.com/okultahta/tahta-server/internal/stroke"
)

const pdfMargin = 24.0 // points

// PNG renders strokes on a width x height surface and writes it as PNG.
func PNG(w io.Writer, strokes []stroke.Stroke, width, height int) error {
	r, err := render.New(width, height)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Render(strokes, nil); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := r.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// PDF renders strokes and places the image on a single A4 page, oriented to
// match the surface and scaled to fit inside the margins.
func PDF(w io.Writer, strokes []stroke.Stroke, width, height int, title string) error {
	var img bytes.Buffer
	if err := PNG(&img, strokes, width, height); err != nil {
		return err
	}

	orientation := "P"
	if width > height {
		orientation = "L"
	}
	p := gofpdf.New(orientation, "pt", "A4", "")
	p.SetTitle(title, true)
	p.SetCreator("tahta", true)
	p.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	p.RegisterImageOptionsReader("drawing", opts, &img)
	if err := p.Error(); err != nil {
		return fmt.Errorf("register image: %w", err)
	}

	pageW, pageH := p.GetPageSize()
	x, y, fw, fh := fit(float64(width), float64(height), pageW-2*pdfMargin, pageH-2*pdfMargin)
	p.ImageOptions("drawing", pdfMargin+x, pdfMargin+y, fw, fh, false, opts, 0, "")

	if err := p.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// fit scales w x h into the box keeping the aspect ratio and centers it.
func fit(w, h, boxW, boxH float64) (x, y, fw, fh float64) {
	scale := min(boxW/w, boxH/h)
	fw, fh = w*scale, h*scale
	return (boxW - fw) / 2, (boxH - fh) / 2, fw, fh
}
