package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/shinji-kodama/secureqr/internal/barcode"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/secureqr"
)

// uploadField is the multipart field that carries the image.
const uploadField = "qr_image"

// decodeResponse is the success body of /upload and /decode.
type decodeResponse struct {
	DecodedData *model.Record `json:"decoded_data"`
}

// decodeRequest is the body of /decode.
type decodeRequest struct {
	Data string `json:"data"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload reads the QR code out of an uploaded image and decodes it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, uploadTooLarge(maxErr.Limit))
		case errors.Is(err, errNoFileSelected):
			writeError(w, http.StatusBadRequest, "No file selected")
		default:
			logEntry(r).WithError(err).Debug("no upload in request")
			writeError(w, http.StatusBadRequest, "No QR image provided")
		}
		return
	}

	text, err := s.scanner.Scan(bytes.NewReader(data))
	if err != nil {
		s.metrics.RecordDecode(scanOutcome(err))
		logEntry(r).WithError(err).Debug("scan failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.decode(w, r, text)
}

var (
	// errNoUpload means no file part named uploadField was sent.
	errNoUpload = errors.New("no file part " + uploadField)

	// errNoFileSelected means the file part was sent with an empty
	// filename, which is what a form submitted without a selection sends.
	errNoFileSelected = errors.New("empty filename")
)

// readUpload returns the content of the first part named uploadField that
// declares a filename. Parts without a filename parameter are plain form
// values and do not count as uploads, even under the same name.
//
// The body is already capped by bodyLimit, so reading the part into
// memory is bounded.
func readUpload(r *http.Request) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoUpload
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != uploadField {
			continue
		}
		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			continue
		}
		filename, ok := params["filename"]
		if !ok {
			continue
		}
		if filename == "" {
			return nil, errNoFileSelected
		}
		return io.ReadAll(part)
	}
}

// handleDecode decodes QR text that the client has already read.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, uploadTooLarge(maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Data) == "" {
		s.metrics.RecordDecode("empty")
		writeError(w, http.StatusBadRequest, barcode.ErrEmptyCode.Error())
		return
	}

	s.decode(w, r, req.Data)
}

// decode runs the secure QR decoder and writes the response.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, text string) {
	rec, err := s.decoder.Decode(text)
	if err != nil {
		outcome := "error"
		var decErr *secureqr.DecodeError
		if errors.As(err, &decErr) {
			outcome = string(decErr.Stage)
		}
		s.metrics.RecordDecode(outcome)
		logEntry(r).WithError(err).WithField("stage", outcome).Info("decode failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.RecordDecode("ok")
	logEntry(r).WithField("indicator", rec.Indicator).Debug("decoded secure QR")
	writeJSON(w, http.StatusOK, decodeResponse{DecodedData: rec})
}

// scanOutcome maps a scanner error to a metrics label.
func scanOutcome(err error) string {
	switch {
	case errors.Is(err, barcode.ErrImageOpen):
		return "image"
	case errors.Is(err, barcode.ErrNoCode):
		return "no_code"
	case errors.Is(err, barcode.ErrEmptyCode):
		return "empty"
	default:
		return "error"
	}
}
