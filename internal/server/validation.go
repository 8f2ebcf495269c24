package server

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/xeipuuv/gojsonschema"
)

const (
	initialLineBufferSize = 128 * 1024
	maxLineSize           = 1 << 28
)

// lineSchema is the shape every LSIF line must have before the payload is
// accepted for conversion. The importer re-checks the graph structure; this
// gate only rejects uploads that are not LSIF at all.
const lineSchema = `{
	"type": "object",
	"required": ["id", "type", "label"],
	"properties": {
		"id": { "type": ["string", "number"] },
		"type": { "enum": ["vertex", "edge"] },
		"label": { "type": "string", "minLength": 1 }
	},
	"oneOf": [
		{
			"properties": { "type": { "enum": ["vertex"] } }
		},
		{
			"properties": { "type": { "enum": ["edge"] } },
			"required": ["outV"]
		}
	]
}`

var compiledLineSchema = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(lineSchema))
	if err != nil {
		panic(fmt.Sprintf("malformed line schema: %s", err))
	}
	return schema
}()

// ValidationError marks an upload rejected by the payload gate. These map
// to 422 responses and are never the server's fault.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// spoolUpload copies the raw payload from src to dst. Unless skipValidation
// is set, the decompressed lines are checked against the line schema as
// they stream past; a failure aborts the copy.
func spoolUpload(dst io.Writer, src io.Reader, skipValidation bool) error {
	if skipValidation {
		_, err := io.Copy(dst, src)
		return err
	}

	tee := io.TeeReader(src, dst)
	if err := validateUpload(tee); err != nil {
		return err
	}

	// The gzip reader stops at the end of the compressed stream; drain the
	// rest so the spooled file is byte-identical to the request body.
	_, err := io.Copy(ioutil.Discard, tee)
	return err
}

func validateUpload(r io.Reader) error {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return validationErrorf("invalid gzip stream: %s", err)
	}

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 0, initialLineBufferSize), maxLineSize)

	lineNumber := 0
	seenMetaData := false
	for scanner.Scan() {
		lineNumber++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		result, err := compiledLineSchema.Validate(gojsonschema.NewBytesLoader(line))
		if err != nil {
			return validationErrorf("failed to process line %d: %s", lineNumber, err)
		}

		if !result.Valid() {
			return validationErrorf("line %d: %s", lineNumber, result.Errors()[0].String())
		}

		var element struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(line, &element); err == nil && element.Label == "metaData" {
			seenMetaData = true
		}
	}

	if err := scanner.Err(); err != nil {
		return validationErrorf("invalid gzip stream: %s", err)
	}

	if lineNumber == 0 {
		return validationErrorf("empty payload")
	}

	if !seenMetaData {
		return validationErrorf("no metaData vertex")
	}

	return nil
}
