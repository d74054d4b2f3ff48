/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders a played-through transcript of a novel to PDF.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Entry is one transcript item: a displayed line or a selected option.
type Entry struct {
	Text   string
	Choice bool
}

// Transcript is the input of TranscriptPDF.
type Transcript struct {
	Title   string
	Entries []Entry
}

// Color is an 8-bit RGB triple.
type Color struct{ R, G, B uint8 }

// PDFOptions controls PDF export behavior.
// Units are points (pt). Without FontFile the built-in Helvetica is used,
// which only covers Latin-1; pass a TTF to export CJK text.
type PDFOptions struct {
	PageWidth   float64
	PageHeight  float64
	Margin      float64
	FontSize    float64
	FontFile    string
	ChoiceColor Color
	// IncludeRule draws a hairline under the title.
	IncludeRule bool
}

func (o PDFOptions) withDefaults() PDFOptions {
	if o.PageWidth <= 0 || o.PageHeight <= 0 {
		o.PageWidth, o.PageHeight = 420, 595 // A5
	}
	if o.Margin <= 0 {
		o.Margin = 36
	}
	if o.FontSize <= 0 {
		o.FontSize = 11
	}
	if o.ChoiceColor == (Color{}) {
		o.ChoiceColor = Color{R: 40, G: 80, B: 160}
	}
	return o
}

const utf8Family = "transcript"

// render lays out the transcript; the caller decides where it is written.
func render(tr Transcript, opt PDFOptions) (*gofpdf.Fpdf, error) {
	if len(tr.Entries) == 0 {
		return nil, errors.New("transcript is empty")
	}
	opt = opt.withDefaults()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.PageWidth, Ht: opt.PageHeight},
	})
	pdf.SetTitle(tr.Title, true)
	pdf.SetAuthor("govn", false)
	pdf.SetMargins(opt.Margin, opt.Margin, opt.Margin)
	pdf.SetAutoPageBreak(true, opt.Margin)

	family := "Helvetica"
	tr8 := pdf.UnicodeTranslatorFromDescriptor("")
	if opt.FontFile != "" {
		pdf.AddUTF8Font(utf8Family, "", opt.FontFile)
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("load font %s: %w", filepath.Base(opt.FontFile), err)
		}
		family = utf8Family
		tr8 = func(s string) string { return s }
	}

	lh := opt.FontSize * 1.4
	width := opt.PageWidth - 2*opt.Margin
	pdf.AddPage()
	if tr.Title != "" {
		pdf.SetFont(family, "", opt.FontSize*1.5)
		pdf.MultiCell(width, opt.FontSize*2, tr8(tr.Title), "", "L", false)
		if opt.IncludeRule {
			y := pdf.GetY()
			pdf.SetLineWidth(0.3)
			pdf.Line(opt.Margin, y, opt.PageWidth-opt.Margin, y)
		}
		pdf.Ln(lh / 2)
	}
	pdf.SetFont(family, "", opt.FontSize)
	for _, e := range tr.Entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			pdf.Ln(lh / 2)
			continue
		}
		if e.Choice {
			pdf.SetTextColor(int(opt.ChoiceColor.R), int(opt.ChoiceColor.G), int(opt.ChoiceColor.B))
			text = "> " + text
		}
		pdf.MultiCell(width, lh, tr8(text), "", "L", false)
		if e.Choice {
			pdf.SetTextColor(0, 0, 0)
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	return pdf, nil
}

// TranscriptPDF writes tr as a PDF document to w.
func TranscriptPDF(w io.Writer, tr Transcript, opt PDFOptions) error {
	pdf, err := render(tr, opt)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// TranscriptPDFFile writes tr to outPath, creating parent directories.
func TranscriptPDFFile(outPath string, tr Transcript, opt PDFOptions) error {
	pdf, err := render(tr, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// FromHistory turns plain history lines into transcript entries.
func FromHistory(title string, lines []string) Transcript {
	tr := Transcript{Title: title, Entries: make([]Entry, 0, len(lines))}
	for _, l := range lines {
		tr.Entries = append(tr.Entries, Entry{Text: l})
	}
	return tr
}
