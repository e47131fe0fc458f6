package usernotes

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	envelopeDecodingErrorTemplateConstant  = "unable to decode usernotes envelope: %w"
	blobMissingMessageConstant             = "usernotes blob is empty"
	blobBase64ErrorTemplateConstant        = "unable to decode usernotes blob: %w"
	blobInflateErrorTemplateConstant       = "unable to inflate usernotes blob: %w"
	blobDecodingErrorTemplateConstant      = "unable to decode usernotes blob contents: %w"
	invalidDocumentErrorTemplateConstant   = "invalid usernotes document: %s"
	timestampDecodingErrorTemplateConstant = "invalid note timestamp %s"
	timestampRangeErrorTemplateConstant    = "note timestamp %s is out of range"
)

// InvalidDocumentError reports a wiki page that cannot be decoded into a LegacyDocument.
type InvalidDocumentError struct {
	Message string
	Cause   error
}

// Error describes the decoding failure.
func (documentError InvalidDocumentError) Error() string {
	if documentError.Cause == nil {
		return fmt.Sprintf(invalidDocumentErrorTemplateConstant, documentError.Message)
	}
	return fmt.Sprintf(invalidDocumentErrorTemplateConstant, documentError.Cause)
}

// Unwrap exposes the underlying cause.
func (documentError InvalidDocumentError) Unwrap() error {
	return documentError.Cause
}

// Constants holds the lookup tables shared by every note in the document.
type Constants struct {
	Users    []string `json:"users"`
	Warnings []string `json:"warnings"`
}

// EpochSeconds is a Unix timestamp that tolerates fractional JSON numbers.
type EpochSeconds int64

// UnmarshalJSON accepts integer and fractional second values.
func (epochSeconds *EpochSeconds) UnmarshalJSON(data []byte) error {
	var numericValue json.Number
	if decodeError := json.Unmarshal(data, &numericValue); decodeError != nil {
		return decodeError
	}
	if integerValue, integerError := numericValue.Int64(); integerError == nil {
		*epochSeconds = EpochSeconds(integerValue)
		return nil
	}
	floatValue, floatError := numericValue.Float64()
	if floatError != nil {
		return fmt.Errorf(timestampDecodingErrorTemplateConstant, numericValue.String())
	}
	flooredValue := math.Floor(floatValue)
	if !EpochInRange(flooredValue) {
		return InvalidDocumentError{Message: fmt.Sprintf(timestampRangeErrorTemplateConstant, numericValue.String())}
	}
	*epochSeconds = EpochSeconds(flooredValue)
	return nil
}

// EpochInRange reports whether seconds converts to an int64 without overflow.
func EpochInRange(seconds float64) bool {
	return !math.IsNaN(seconds) && seconds >= math.MinInt64 && seconds < math.MaxInt64
}

// LegacyNote is a single toolbox note as stored in the compressed blob.
type LegacyNote struct {
	ModeratorIndex *int         `json:"m"`
	TimestampEpoch EpochSeconds `json:"t"`
	Text           string       `json:"n"`
	WarningIndex   *int         `json:"w"`
	LinkSpec       string       `json:"l"`
}

// LegacyUserNotes wraps the ordered notes recorded for one target user.
type LegacyUserNotes struct {
	Notes []LegacyNote `json:"ns"`
}

// LegacyDocument is the decoded usernotes wiki page.
type LegacyDocument struct {
	Version   int
	Constants Constants
	Users     map[string]LegacyUserNotes
}

type legacyEnvelope struct {
	Version   int       `json:"ver"`
	Constants Constants `json:"constants"`
	Blob      string    `json:"blob"`
}

// DecodeDocument parses the wiki page content, decoding and inflating the embedded blob.
func DecodeDocument(pageContent string) (LegacyDocument, error) {
	var envelope legacyEnvelope
	if decodeError := json.Unmarshal([]byte(pageContent), &envelope); decodeError != nil {
		return LegacyDocument{}, InvalidDocumentError{Cause: fmt.Errorf(envelopeDecodingErrorTemplateConstant, decodeError)}
	}

	trimmedBlob := strings.TrimSpace(envelope.Blob)
	if len(trimmedBlob) == 0 {
		return LegacyDocument{}, InvalidDocumentError{Message: blobMissingMessageConstant}
	}

	compressedBlob, base64Error := base64.StdEncoding.DecodeString(trimmedBlob)
	if base64Error != nil {
		return LegacyDocument{}, InvalidDocumentError{Cause: fmt.Errorf(blobBase64ErrorTemplateConstant, base64Error)}
	}

	inflatedBlob, inflateError := inflate(compressedBlob)
	if inflateError != nil {
		return LegacyDocument{}, InvalidDocumentError{Cause: fmt.Errorf(blobInflateErrorTemplateConstant, inflateError)}
	}

	users := make(map[string]LegacyUserNotes)
	if decodeError := json.Unmarshal(inflatedBlob, &users); decodeError != nil {
		return LegacyDocument{}, InvalidDocumentError{Cause: fmt.Errorf(blobDecodingErrorTemplateConstant, decodeError)}
	}

	return LegacyDocument{
		Version:   envelope.Version,
		Constants: envelope.Constants,
		Users:     users,
	}, nil
}

// EncodeDocument produces wiki page content for the provided document.
func EncodeDocument(document LegacyDocument) (string, error) {
	blobContents, marshalError := json.Marshal(document.Users)
	if marshalError != nil {
		return "", marshalError
	}

	var compressedBuffer bytes.Buffer
	compressor := zlib.NewWriter(&compressedBuffer)
	if _, writeError := compressor.Write(blobContents); writeError != nil {
		return "", writeError
	}
	if closeError := compressor.Close(); closeError != nil {
		return "", closeError
	}

	envelopeContents, envelopeError := json.Marshal(legacyEnvelope{
		Version:   document.Version,
		Constants: document.Constants,
		Blob:      base64.StdEncoding.EncodeToString(compressedBuffer.Bytes()),
	})
	if envelopeError != nil {
		return "", envelopeError
	}

	return string(envelopeContents), nil
}

func inflate(compressed []byte) ([]byte, error) {
	decompressor, readerError := zlib.NewReader(bytes.NewReader(compressed))
	if readerError != nil {
		return nil, readerError
	}
	defer decompressor.Close()

	return io.ReadAll(decompressor)
}
