package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter prints data as indented JSON. HTML escaping is off so
// preview URLs keep their literal "&" separators and can be copied as is.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}
