package httpapi

// MIME types sent in the Content-Type header.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeXML    = "application/xml"
	ContentTypeBinary = "application/octet-stream"
)

var contentTypes = map[string]string{
	"json": ContentTypeJSON,
	"text": ContentTypeText,
	"xml":  ContentTypeXML,
	"bin":  ContentTypeBinary,
}

// ContentType maps a message format name to its MIME type. Unknown formats,
// json-iotf included, are sent as JSON.
func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return ContentTypeJSON
}
