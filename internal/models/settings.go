package models

import (
	"fmt"
	"strings"
)

// CompressionLevel selects the image quality/scale trade-off.
type CompressionLevel int

const (
	// High keeps the best quality and the least reduction.
	High CompressionLevel = iota
	Medium
	// Low gives the maximum reduction at lower quality.
	Low
)

func (l CompressionLevel) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("CompressionLevel(%d)", int(l))
	}
}

// ParseCompressionLevel accepts "high", "medium" or "low" in any case.
func ParseCompressionLevel(s string) (CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High, nil
	case "medium", "":
		return Medium, nil
	case "low":
		return Low, nil
	}
	return Medium, fmt.Errorf("%w: unknown compression level %q", ErrInvalidSettings, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l CompressionLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *CompressionLevel) UnmarshalText(b []byte) error {
	v, err := ParseCompressionLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// CompressionSettings configure the compression engine.
type CompressionSettings struct {
	Level             CompressionLevel `json:"level" yaml:"level"`
	RemoveMetadata    bool             `json:"removeMetadata" yaml:"remove_metadata"`
	RemoveAnnotations bool             `json:"removeAnnotations" yaml:"remove_annotations"`
}

// DefaultCompressionSettings matches the desktop tool's defaults.
func DefaultCompressionSettings() CompressionSettings {
	return CompressionSettings{Level: Medium, RemoveMetadata: true}
}

// ImageQuality is the JPEG quality used when re-encoding images.
func (s CompressionSettings) ImageQuality() int {
	switch s.Level {
	case High:
		return 90
	case Low:
		return 30
	default:
		return 60
	}
}

// ScaleFactor is the proportional resize applied to images before re-encoding.
func (s CompressionSettings) ScaleFactor() float64 {
	switch s.Level {
	case High:
		return 1.0
	case Low:
		return 0.5
	default:
		return 0.75
	}
}

// WatermarkKind selects between a text and an image watermark.
type WatermarkKind string

const (
	WatermarkText  WatermarkKind = "text"
	WatermarkImage WatermarkKind = "image"
)

// Position is the anchor of a watermark on the page.
type Position string

const (
	Center      Position = "center"
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// ParsePosition accepts the position names above, case-insensitively.
func ParsePosition(s string) (Position, error) {
	p := Position(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Center, TopLeft, TopRight, BottomLeft, BottomRight:
		return p, nil
	case "":
		return Center, nil
	}
	return Center, fmt.Errorf("%w: unknown watermark position %q", ErrInvalidSettings, s)
}

// WatermarkSettings configure the watermark engine.
type WatermarkSettings struct {
	Kind      WatermarkKind `json:"kind"`
	Text      string        `json:"text,omitempty"`
	ImagePath string        `json:"imagePath,omitempty"`
	Opacity   float64       `json:"opacity"`
	Angle     float64       `json:"angle"`
	Position  Position      `json:"position"`
	FontSize  int           `json:"fontSize"`
}

// DefaultWatermarkSettings returns a 45° semi-transparent centered text mark.
func DefaultWatermarkSettings() WatermarkSettings {
	return WatermarkSettings{
		Kind:     WatermarkText,
		Text:     "CONFIDENTIAL",
		Opacity:  0.3,
		Angle:    45,
		Position: Center,
		FontSize: 48,
	}
}

// ProtectionSettings configure password protection.
type ProtectionSettings struct {
	UserPassword          string `json:"userPassword,omitempty"`
	OwnerPassword         string `json:"ownerPassword,omitempty"`
	RequirePasswordToOpen bool   `json:"requirePasswordToOpen"`
	PreventPrinting       bool   `json:"preventPrinting"`
	PreventCopying        bool   `json:"preventCopying"`
	PreventEditing        bool   `json:"preventEditing"`
}

// PageRange is an inclusive, 1-based page interval.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len is the number of pages in r.
func (r PageRange) Len() int { return r.End - r.Start + 1 }
