/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tweegee/internal/source"
	"tweegee/internal/story"
	"tweegee/internal/version"
)

// PDFOptions controls the passage proof.
// Units are points (pt). Built-in Helvetica and Courier keep text vector without embedding.
type PDFOptions struct {
	PageSize string // "A4" (default) or "Letter"
	// IncludeErrors prints each passage's parse errors under its source.
	IncludeErrors bool
	// Passages restricts the proof to the named passages; empty means all.
	Passages []string
	// Language is a BCP 47 tag used to format the cover statistics; empty means English.
	Language string
}

const (
	pdfMargin   = 48.0
	codeSize    = 9.0
	codeLeading = 11.0
)

// WritePDF renders a proof of st: a cover with statistics, then one section per passage
// with its name, tags, raw source and optionally the errors reported against it.
func WritePDF(w io.Writer, st *story.Story, opt PDFOptions) error {
	if st == nil {
		return fmt.Errorf("story is nil")
	}
	tag := language.English
	if opt.Language != "" {
		t, err := language.Parse(opt.Language)
		if err != nil {
			return fmt.Errorf("language %q: %w", opt.Language, err)
		}
		tag = t
	}
	num := message.NewPrinter(tag)
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	pdf := gofpdf.New("P", "pt", size, "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	// core fonts are cp1252; translate from UTF-8
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := st.Title
	if title == "" {
		title = "Untitled story"
	}
	pdf.SetTitle(title, true)
	if st.Author != "" {
		pdf.SetAuthor(st.Author, true)
	}
	pdf.SetCreator("tweegee "+version.String(), false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin + 12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s  -  page %d/{nb}", title, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	byPassage := errorsByPassage(st.Errors)

	// cover
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.MultiCell(0, 30, tr(title), "", "L", false)
	if st.Author != "" {
		pdf.SetFont("Helvetica", "", 14)
		pdf.MultiCell(0, 20, tr("by "+st.Author), "", "L", false)
	}
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range []string{
		fmt.Sprintf("Start passage: %s", st.StartPassageName),
		num.Sprintf("Passages: %d", st.PassageCount()),
		num.Sprintf("Words: %d", st.WordCount),
		num.Sprintf("Errors: %d", len(st.Errors)),
	} {
		pdf.CellFormat(0, 16, tr(line), "", 1, "L", false, 0, "")
	}
	// story-wide errors have no passage to sit under
	if opt.IncludeErrors && len(byPassage[""]) > 0 {
		pdf.Ln(8)
		writeErrors(pdf, tr, byPassage[""])
	}

	wanted := map[string]bool{}
	for _, n := range opt.Passages {
		wanted[n] = true
	}
	for _, p := range st.Passages {
		if len(wanted) > 0 && !wanted[p.Name] {
			continue
		}
		pdf.AddPage()
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.MultiCell(0, 20, tr(p.Name), "", "L", false)
		if len(p.Tags) > 0 {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 14, tr("tags: "+strings.Join(p.Tags, ", ")), "", "L", false)
		}
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 12, tr(p.Location.String()), "", "L", false)
		pdf.Ln(6)

		pdf.SetDrawColor(200, 200, 200)
		pdf.SetLineWidth(0.5)
		x, y := pdf.GetXY()
		pageW, _ := pdf.GetPageSize()
		pdf.Line(x, y, pageW-pdfMargin, y)
		pdf.Ln(6)

		pdf.SetFont("Courier", "", codeSize)
		pdf.SetTextColor(0, 0, 0)
		for i, line := range p.Raw {
			if i == 0 {
				continue // the header is the section title
			}
			pdf.MultiCell(0, codeLeading, tr(fmt.Sprintf("%3d  %s", i, line)), "", "L", false)
		}
		if opt.IncludeErrors && len(byPassage[p.Name]) > 0 {
			pdf.Ln(8)
			writeErrors(pdf, tr, byPassage[p.Name])
		}
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeErrors(pdf *gofpdf.Fpdf, tr func(string) string, errs []*source.Error) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(180, 0, 0)
	pdf.CellFormat(0, 14, "Errors", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, e := range errs {
		pdf.MultiCell(0, 12, tr(e.Error()), "", "L", false)
	}
	pdf.SetTextColor(0, 0, 0)
}

// errorsByPassage groups errors by the passage they were reported in.
// Errors without a location are keyed by the empty string.
func errorsByPassage(errs []*source.Error) map[string][]*source.Error {
	out := map[string][]*source.Error{}
	for _, e := range errs {
		key := ""
		if e.Location != nil {
			key = e.Location.Passage
		}
		out[key] = append(out[key], e)
	}
	return out
}
