package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	defaultDocxBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxBodyType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// runText captures the text of a <w:t> run, whatever attributes it carries.
var runText = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

var xmlUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", "\"", "&apos;", "'")

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, true, err
	}
	return nil, false, nil
}

// docxBodyPart resolves the main document part, falling back to word/document.xml
// when the package does not declare one.
func docxBodyPart(zr *zip.Reader) string {
	raw, ok, err := readZipEntry(zr, docxContentTypes)
	if !ok || err != nil {
		return defaultDocxBody
	}
	var ct contentTypes
	if err := xml.Unmarshal(raw, &ct); err != nil {
		return defaultDocxBody
	}
	for _, o := range ct.Overrides {
		if o.ContentType == docxBodyType && o.PartName != "" {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return defaultDocxBody
}

// extractDOCX returns one line per non-empty paragraph, with the runs of a paragraph
// joined by single spaces.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open DOCX: not a zip: %w", err)
	}
	part := docxBodyPart(zr)
	body, ok, err := readZipEntry(zr, part)
	if err != nil {
		return "", fmt.Errorf("read DOCX part %s: %w", part, err)
	}
	if !ok {
		return "", fmt.Errorf("read DOCX: part %s not found", part)
	}

	var lines []string
	for _, para := range strings.Split(string(body), "</w:p>") {
		var runs []string
		for _, m := range runText.FindAllStringSubmatch(para, -1) {
			if t := strings.TrimSpace(xmlUnescaper.Replace(m[1])); t != "" {
				runs = append(runs, t)
			}
		}
		if len(runs) > 0 {
			lines = append(lines, strings.Join(runs, " "))
		}
	}
	return strings.Join(lines, "\n"), nil
}
