package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// pdfToPNG renders the first page of a PDF as a PNG image. Receipts are
// almost always single page; multi-page documents keep page one.
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, &Error{Reason: ReasonUnreadable, Err: fmt.Errorf("opening PDF: %w", err)}
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, &Error{Reason: ReasonUnreadable, Err: fmt.Errorf("rendering PDF page: %w", err)}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &Error{Reason: ReasonUnreadable, Err: fmt.Errorf("encoding PNG: %w", err)}
	}

	return buf.Bytes(), nil
}

// imageToPNG converts any supported image format to PNG.
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// HEIC photos from iPhones are not covered by the standard image
	// decoders.
	if isHEICData(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, &Error{Reason: ReasonUnreadable, Err: fmt.Errorf("decoding HEIC image: %w", err)}
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, &Error{Reason: ReasonUnsupportedFormat, Err: fmt.Errorf("supported formats are JPEG, PNG, GIF, HEIC, PDF: %w", err)}
			}
			return nil, &Error{Reason: ReasonUnreadable, Err: fmt.Errorf("decoding image: %w", err)}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &Error{Reason: ReasonUnreadable, Err: fmt.Errorf("encoding PNG: %w", err)}
	}

	return buf.Bytes(), nil
}

// isHEICData checks for the HEIC/HEIF ftyp box signature.
func isHEICData(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// preparePNG normalizes a document to PNG bytes regardless of whether it
// arrived as a PDF or a photo.
func preparePNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	if mimeType == "application/pdf" {
		return pdfToPNG(data)
	}
	if mimeType != "image/png" || isHEICData(data) {
		return imageToPNG(data, mimeType)
	}
	return data, nil
}
