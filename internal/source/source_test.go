package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/domain"
)

func TestLoadText(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"book.txt", "book.md", "BOOK.TXT"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("LIVRE I\n\nCHAPITRE I\n"), 0o644))

		text, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "LIVRE I\n\nCHAPITRE I\n", text)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	docx := filepath.Join(dir, "book.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o644))
	badPDF := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(badPDF, []byte("not a pdf"), 0o644))

	for _, path := range []string{filepath.Join(dir, "missing.txt"), dir, docx, badPDF} {
		_, err := Load(path)
		assert.ErrorIs(t, err, domain.ErrValidation, path)
	}
}

// writePDF builds a minimal PDF with one Helvetica text line per page.
func writePDF(t *testing.T, path string, pages ...string) {
	t.Helper()
	n := len(pages)
	// objects: 1 catalog, 2 page tree, 3 font, then a page and a content stream per page
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var kids []string
	for i, text := range pages {
		pageID, contentID := 4+2*i, 5+2*i
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n)

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%EOF\n", len(objs)+1, xref)
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

func TestLoadPDFAddsPageMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.pdf")
	writePDF(t, path, "LIVRE I", "Le bailli rendait la justice.")

	text, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "— 1 —\nLIVRE I\n\n— 2 —\nLe bailli rendait la justice.\n\n", text)
}

func TestLoadPDFWithoutTextFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.pdf")
	writePDF(t, path, "")

	_, err := Load(path)

	assert.ErrorIs(t, err, domain.ErrValidation)
}
