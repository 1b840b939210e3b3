package layout

import (
	"errors"
	"fmt"
)

var ErrInvalidPageSpec = errors.New("invalid page spec")

// Margins are in points.
type Margins struct {
	Top    float64 `yaml:"top" json:"top"`
	Right  float64 `yaml:"right" json:"right"`
	Bottom float64 `yaml:"bottom" json:"bottom"`
	Left   float64 `yaml:"left" json:"left"`
}

// PageSpec fixes page geometry and typographic metrics. All lengths are in
// points (1/72 inch).
type PageSpec struct {
	Width   float64 `yaml:"width" json:"width"`
	Height  float64 `yaml:"height" json:"height"`
	Margins Margins `yaml:"margins" json:"margins"`

	BodyFontSize     float64 `yaml:"body_font_size" json:"body_font_size"`
	BaseLineHeight   float64 `yaml:"base_line_height" json:"base_line_height"`
	ParagraphSpacing float64 `yaml:"paragraph_spacing" json:"paragraph_spacing"`

	// Indexed by heading level minus one.
	HeadingFontSizes         [3]float64 `yaml:"heading_font_sizes" json:"heading_font_sizes"`
	HeadingLineHeights       [3]float64 `yaml:"heading_line_heights" json:"heading_line_heights"`
	HeadingSpacingMultiplier float64    `yaml:"heading_spacing_multiplier" json:"heading_spacing_multiplier"`

	ImageMaxWidth float64 `yaml:"image_max_width" json:"image_max_width"`

	ReferenceFontSize   float64 `yaml:"reference_font_size" json:"reference_font_size"`
	ReferenceLineHeight float64 `yaml:"reference_line_height" json:"reference_line_height"`

	TOCFontSize   float64 `yaml:"toc_font_size" json:"toc_font_size"`
	TOCLineHeight float64 `yaml:"toc_line_height" json:"toc_line_height"`

	CoverTitleFontSize    float64 `yaml:"cover_title_font_size" json:"cover_title_font_size"`
	CoverSubtitleFontSize float64 `yaml:"cover_subtitle_font_size" json:"cover_subtitle_font_size"`
}

// A4 returns the default portrait A4 spec. The bottom margin is larger than
// the others to leave room for the footer.
func A4() PageSpec {
	return PageSpec{
		Width:  595.28,
		Height: 841.89,
		Margins: Margins{
			Top:    40,
			Right:  40,
			Bottom: 60,
			Left:   40,
		},
		BodyFontSize:             12,
		BaseLineHeight:           18,
		ParagraphSpacing:         10,
		HeadingFontSizes:         [3]float64{24, 18, 15},
		HeadingLineHeights:       [3]float64{30, 24, 20},
		HeadingSpacingMultiplier: 1.5,
		ImageMaxWidth:            340,
		ReferenceFontSize:        10,
		ReferenceLineHeight:      14,
		TOCFontSize:              12,
		TOCLineHeight:            20,
		CoverTitleFontSize:       34,
		CoverSubtitleFontSize:    18,
	}
}

func (s PageSpec) UsableWidth() float64  { return s.Width - s.Margins.Left - s.Margins.Right }
func (s PageSpec) UsableHeight() float64 { return s.Height - s.Margins.Top - s.Margins.Bottom }

// ContentBottom is the lowest y a block may reach.
func (s PageSpec) ContentBottom() float64 { return s.Height - s.Margins.Bottom }

func (s PageSpec) headingFontSize(level int) float64 {
	return s.HeadingFontSizes[min(max(level, 1), 3)-1]
}

func (s PageSpec) headingLineHeight(level int) float64 {
	return s.HeadingLineHeights[min(max(level, 1), 3)-1]
}

// Validate rejects geometry that leaves no usable area or metrics that
// would stall the cursor.
func (s PageSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: page size %.2fx%.2f", ErrInvalidPageSpec, s.Width, s.Height)
	}
	m := s.Margins
	if m.Top < 0 || m.Right < 0 || m.Bottom < 0 || m.Left < 0 {
		return fmt.Errorf("%w: negative margin", ErrInvalidPageSpec)
	}
	if s.UsableWidth() <= 0 || s.UsableHeight() <= 0 {
		return fmt.Errorf("%w: margins leave no usable area", ErrInvalidPageSpec)
	}
	positive := map[string]float64{
		"body_font_size":           s.BodyFontSize,
		"base_line_height":         s.BaseLineHeight,
		"reference_font_size":      s.ReferenceFontSize,
		"reference_line_height":    s.ReferenceLineHeight,
		"toc_font_size":            s.TOCFontSize,
		"toc_line_height":          s.TOCLineHeight,
		"image_max_width":          s.ImageMaxWidth,
		"cover_title_font_size":    s.CoverTitleFontSize,
		"cover_subtitle_font_size": s.CoverSubtitleFontSize,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidPageSpec, name)
		}
	}
	for i := range 3 {
		if s.HeadingFontSizes[i] <= 0 || s.HeadingLineHeights[i] <= 0 {
			return fmt.Errorf("%w: heading level %d metrics must be positive", ErrInvalidPageSpec, i+1)
		}
	}
	if s.ParagraphSpacing < 0 || s.HeadingSpacingMultiplier < 0 {
		return fmt.Errorf("%w: spacing must not be negative", ErrInvalidPageSpec)
	}
	return nil
}

// Policy holds placement choices that are not geometry.
type Policy struct {
	// Diagramming adds a cover page (when a cover image exists) and a table
	// of contents ahead of the chapters.
	Diagramming bool `yaml:"diagramming" json:"diagramming"`
	// BreakLongWords splits a word wider than the usable width at rune
	// boundaries. When false such a word gets its own over-wide line.
	BreakLongWords bool `yaml:"break_long_words" json:"break_long_words"`

	TOCTitle        string `yaml:"toc_title" json:"toc_title"`
	ReferencesTitle string `yaml:"references_title" json:"references_title"`
	CoverSubtitle   string `yaml:"cover_subtitle" json:"cover_subtitle"`
}

func DefaultPolicy() Policy {
	return Policy{
		Diagramming:     true,
		BreakLongWords:  true,
		TOCTitle:        "Contents",
		ReferencesTitle: "References",
		CoverSubtitle:   "Complete Guide",
	}
}

// Face selects a font family.
type Face int

const (
	BodyFace Face = iota
	HeadingFace
)

// Font describes how a run of text is measured and drawn.
type Font struct {
	Face Face
	Bold bool
	Size float64
}

// Measurer reports the advance width of text in points. Implementations
// wrap a concrete rendering backend.
type Measurer interface {
	TextWidth(text string, font Font) float64
}
