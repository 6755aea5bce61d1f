package docsource

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Class is the broad kind of a document file.
type Class int

const (
	ClassUnsupported Class = iota
	ClassPDF
	// ClassOffice documents can be converted to PDF.
	ClassOffice
)

func (c Class) String() string {
	switch c {
	case ClassPDF:
		return "pdf"
	case ClassOffice:
		return "office"
	default:
		return "unsupported"
	}
}

// FileType is the result of Detect.
type FileType struct {
	MIMEType  string
	Extension string
	Class     Class
}

// zip and OLE containers are told apart by extension
var containerTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".vsdx": "application/vnd.ms-visio.drawing.main+xml",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".doc":  "application/msword",
	".xls":  "application/vnd.ms-excel",
	".ppt":  "application/vnd.ms-powerpoint",
	".vsd":  "application/vnd.ms-visio.drawing",
}

var officeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.ms-visio.drawing.main+xml":                                 true,
	"application/vnd.ms-visio.drawing":                                          true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,
	"application/msword":                                                        true,
	"application/vnd.ms-excel":                                                  true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/rtf":                                                           true,
	"text/rtf":                                                                  true,
}

// Detect classifies the file at path by its content. Zip and OLE containers
// are refined by the file extension.
func Detect(path string) (FileType, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return FileType{}, fmt.Errorf("detect file type: %w", err)
	}
	ft := FileType{MIMEType: mtype.String(), Extension: mtype.Extension()}

	switch {
	case mtype.Is("application/zip"), mtype.Is("application/x-ole-storage"), mtype.Is("application/x-cfb"):
		ext := strings.ToLower(filepath.Ext(path))
		if m, ok := containerTypes[ext]; ok {
			log.Debug().Str("detected", ft.MIMEType).Str("override", m).Msg("container type refined by extension")
			ft.MIMEType, ft.Extension = m, ext
		}
	}

	switch {
	case mtype.Is("application/pdf"):
		ft.Class = ClassPDF
	case officeTypes[ft.MIMEType] || mtype.Is("application/rtf"):
		ft.Class = ClassOffice
	default:
		ft.Class = ClassUnsupported
	}
	log.Debug().Str("file", path).Str("mime", ft.MIMEType).Stringer("class", ft.Class).Msg("detected file type")
	return ft, nil
}
