package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/bobarin/rendercast/internal/planner"
	"github.com/bobarin/rendercast/internal/script"
)

// ---------------------------------------------------------------------------
// ASS Subtitle Writer
//
// Generates sentence-level subtitles in ASS (Advanced SubStation Alpha)
// format. Each sentence is shown for its display window from the timing
// plan, so the burned-in text tracks the narration exactly.
//
// Visual style:
//   - Bold white text with dark outline, readable on any background
//   - Portrait videos center the text; landscape sits near the bottom
//   - Font size scales with the render height so 720p and 4K look the same
//   - Devanagari scripts switch to a font that actually has the glyphs
// ---------------------------------------------------------------------------

const (
	// ASS colors are in &HAABBGGRR format (hex, note: BGR not RGB)
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorSemiBlack = "&H80000000"

	defaultFontLatin      = "Noto Sans"
	defaultFontDevanagari = "Noto Sans Devanagari"

	// Reference font size at 1920-height canvas; scaled linearly from there.
	baseFontSize   = 64
	baseCanvasH    = 1920
	minFontSize    = 24
	outlineDefault = 3

	// ASS numpad alignments
	alignBottomCenter = 2
	alignMiddleCenter = 5
)

// SubtitleStyle holds the resolved style for one render. Zero value is not
// usable; call DefaultSubtitleStyle and merge overrides on top.
type SubtitleStyle struct {
	FontName     string
	FontSize     int
	PrimaryColor string
	OutlineColor string
	Outline      int
	Bold         bool
	Alignment    int
	MarginV      int
}

// DefaultSubtitleStyle picks sensible defaults for the canvas and text.
// Portrait renders center the subtitles; landscape keeps them low.
func DefaultSubtitleStyle(width, height int, text string) SubtitleStyle {
	style := SubtitleStyle{
		FontName:     defaultFontLatin,
		PrimaryColor: assColorWhite,
		OutlineColor: assColorBlack,
		Outline:      outlineDefault,
		Bold:         true,
		Alignment:    alignBottomCenter,
		MarginV:      height / 10,
	}

	if script.ContainsDevanagari(text) {
		style.FontName = defaultFontDevanagari
	}
	if height > width {
		style.Alignment = alignMiddleCenter
		style.MarginV = 0
	}

	style.FontSize = baseFontSize * height / baseCanvasH
	if style.FontSize < minFontSize {
		style.FontSize = minFontSize
	}

	return style
}

// MergeSubtitleStyle applies caller overrides (from the request's
// subtitle_style map) over the defaults. Unknown keys are ignored.
func MergeSubtitleStyle(style SubtitleStyle, overrides map[string]any) SubtitleStyle {
	if overrides == nil {
		return style
	}
	if v, ok := overrides["font_name"].(string); ok && v != "" {
		style.FontName = v
	}
	if v, ok := overrides["font_size"].(float64); ok && v > 0 {
		style.FontSize = int(v)
	}
	if v, ok := overrides["primary_color"].(string); ok && v != "" {
		style.PrimaryColor = v
	}
	if v, ok := overrides["outline_color"].(string); ok && v != "" {
		style.OutlineColor = v
	}
	if v, ok := overrides["outline"].(float64); ok && v >= 0 {
		style.Outline = int(v)
	}
	if v, ok := overrides["bold"].(bool); ok {
		style.Bold = v
	}
	if v, ok := overrides["alignment"].(float64); ok && v >= 1 && v <= 9 {
		style.Alignment = int(v)
	}
	if v, ok := overrides["margin_v"].(float64); ok && v >= 0 {
		style.MarginV = int(v)
	}
	return style
}

// WriteASS writes a subtitle file where sentence i is displayed for the
// plan's window i.
func WriteASS(sentences []string, plan planner.Plan, width, height int, style SubtitleStyle, outputPath string) error {
	if len(sentences) == 0 {
		return fmt.Errorf("no sentences to write subtitles from")
	}
	if len(sentences) != len(plan.Windows) {
		return fmt.Errorf("sentence count %d does not match plan segments %d", len(sentences), len(plan.Windows))
	}

	bold := 0
	if style.Bold {
		bold = -1
	}

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", width)
	fmt.Fprintf(&sb, "PlayResY: %d\n", height)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb,
		"Style: Default,%s,%d,%s,%s,%s,%s,%d,0,0,0,100,100,0,0,1,%d,0,%d,40,40,%d,1\n",
		style.FontName, style.FontSize,
		style.PrimaryColor,
		style.PrimaryColor,
		style.OutlineColor,
		assColorSemiBlack,
		bold,
		style.Outline,
		style.Alignment,
		style.MarginV,
	)
	sb.WriteString("\n")

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for i, sentence := range sentences {
		text := strings.TrimSpace(sentence)
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb,
			"Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(plan.Windows[i].Start),
			formatASSTime(plan.Windows[i].End),
			escapeASSText(text),
		)
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}

	return nil
}

// escapeASSText neutralizes characters with special meaning in ASS dialogue.
func escapeASSText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "{", "(")
	text = strings.ReplaceAll(text, "}", ")")
	text = strings.ReplaceAll(text, "\n", "\\N")
	return text
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
