package module

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFModule exposes PDF structure (page count, title) via ledongthuc/pdf,
// the teacher's own PDF dependency — repointed here from "extract text for
// secret scanning" (pkg/enum/extractor.go's extractPDF) to "describe this
// chunk's PDF structure for a rule condition", the legitimate module-plugin
// shape of that parser (see DESIGN.md for why the batch/enumeration path
// that used to own this dependency was dropped).
//
// ledongthuc/pdf requires a file or io.ReaderAt with a known size, so
// Init spills the buffer to a temp file exactly the way extractPDF does.
type PDFModule struct{}

func (PDFModule) Name() string { return "pdf" }

func (PDFModule) Init(input []byte, hint string) (Fields, error) {
	if !looksLikePDF(input) {
		return Fields{"is_pdf": Bool(false)}, nil
	}

	tmp, err := os.CreateTemp("", "streamyara-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("module/pdf: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(input); err != nil {
		return nil, fmt.Errorf("module/pdf: writing temp file: %w", err)
	}
	tmp.Close()

	f, r, err := pdf.Open(tmp.Name())
	if err != nil {
		// Not a fatal module-init error: the buffer merely isn't a valid
		// PDF despite the header matching, which is a legitimate "no" for
		// rule conditions to read, not a scan failure.
		return Fields{"is_pdf": Bool(false)}, nil
	}
	defer f.Close()

	pages := r.NumPage()
	title := pdfTitle(r)

	return Fields{
		"is_pdf":     Bool(true),
		"page_count": Int(int64(pages)),
		"title":      String(title),
	}, nil
}

func looksLikePDF(input []byte) bool {
	return len(input) >= 5 && string(input[:5]) == "%PDF-"
}

func pdfTitle(r *pdf.Reader) string {
	trailer := r.Trailer()
	info := trailer.Key("Info")
	if info.IsNull() {
		return ""
	}
	title := info.Key("Title")
	if title.IsNull() {
		return ""
	}
	return strings.TrimSpace(title.Text())
}
