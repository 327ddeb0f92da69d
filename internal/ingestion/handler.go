package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	httperr "github.com/voyage-lab/project-voyage/internal/core/errors"
	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/standardise"
)

const (
	msgReadBodyFailed     = "Failed to read request body"
	msgInvalidJSON        = "Invalid JSON body"
	msgInvalidCSV         = "Failed to read CSV upload"
	msgEmptyCSV           = "Uploaded CSV is empty or unreadable"
	msgDuplicateBatch     = "Batch already processed"
	msgUnsupportedVersion = "Unsupported schema version"
	msgFoldFailed         = "Failed to process batch"
)

// BatchEnvelope is the JSON ingestion payload. Rows carry arbitrary columns;
// standardisation decides what survives.
type BatchEnvelope struct {
	BatchID       string      `json:"batch_id"`
	CustomerID    string      `json:"customer_id"`
	SchemaVersion string      `json:"schema_version"`
	DedupeKey     string      `json:"dedupe_key"`
	Rows          []event.Row `json:"rows"`
}

// ingestionError carries the structured HTTP error shape from a helper back
// to the handler. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// RegisterRoutes registers the batch ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/batches", s.BatchHandler)
	r.POST("/v1/batches/csv", s.CSVHandler)
}

// BatchHandler accepts a JSON batch envelope, folds it, and reports the
// outcome as accepted, duplicate, or rejected.
func (s *Service) BatchHandler(c *gin.Context) {
	env, payloadSize, ierr := s.parseEnvelope(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	if ierr := validateVersion(env.SchemaVersion); ierr != nil {
		writeError(c, ierr)
		return
	}

	if s.idem.Seen(env.DedupeKey) {
		slog.Info("Duplicate batch rejected", "batch_id", env.BatchID, "dedupe_key", env.DedupeKey)
		c.JSON(http.StatusConflict, gin.H{
			"status":   "duplicate",
			"batch_id": env.BatchID,
		})
		return
	}

	slog.Info("Received batch",
		"batch_id", env.BatchID,
		"customer_id", env.CustomerID,
		"schema_version", env.SchemaVersion,
		"rows", len(env.Rows),
		"payload_size", payloadSize)

	s.runBatch(c, env.BatchID, env.DedupeKey, frameFromRows(env.Rows))
}

// CSVHandler accepts a multipart CSV upload and runs the same workflow.
func (s *Service) CSVHandler(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		slog.Warn("CSV upload missing file part", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidCsvError,
			message:    msgInvalidCSV,
		})
		return
	}
	defer file.Close()

	maxBytes := int64(s.maxBodySizeBytes)
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		slog.Error("Failed to read CSV upload", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		})
		return
	}
	if int64(len(data)) > maxBytes {
		slog.Warn("CSV upload exceeds maximum size", "size", len(data), "max", maxBytes)
		writeError(c, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidCsvError,
			message:    "CSV upload exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		})
		return
	}

	frame, ierr := frameFromCSV(bytes.NewReader(data))
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	batchID := uuid.NewString()
	dedupeKey := c.Request.FormValue("dedupe_key")
	if s.idem.Seen(dedupeKey) {
		slog.Info("Duplicate CSV batch rejected", "batch_id", batchID)
		c.JSON(http.StatusConflict, gin.H{
			"status":   "duplicate",
			"batch_id": batchID,
		})
		return
	}

	slog.Info("Received CSV batch", "batch_id", batchID, "rows", len(frame.Rows))
	s.runBatch(c, batchID, dedupeKey, frame)
}

func (s *Service) runBatch(c *gin.Context, batchID, dedupeKey string, frame event.Frame) {
	summary, err := s.ProcessBatch(c.Request.Context(), frame)
	if err != nil {
		var verr *standardise.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("Batch failed standardisation", "batch_id", batchID, "error", err)
			c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
				ErrorType: httperr.HttpValidationError,
				Message:   err.Error(),
				Details:   verr.Details(),
			})
			return
		}

		slog.Error("Batch fold failed", "batch_id", batchID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgFoldFailed,
		})
		return
	}

	// Only a folded batch counts against its dedupe key. Rejected and
	// failed batches stay retryable.
	s.idem.Mark(dedupeKey)

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"batch_id": batchID,
		"summary":  summary,
	})
}

// parseEnvelope reads the size-limited request body and binds the JSON
// envelope, defaulting batch_id when the client omits it.
func (s *Service) parseEnvelope(c *gin.Context) (*BatchEnvelope, int, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1)

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var env BatchEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	if env.BatchID == "" {
		env.BatchID = uuid.NewString()
	}
	return &env, len(bodyBytes), nil
}

func validateVersion(version string) *ingestionError {
	switch version {
	case "", "v1":
		return nil
	default:
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpUnsupportedVersionError,
			message:    msgUnsupportedVersion,
			details:    map[string]interface{}{"schema_version": version},
		}
	}
}

// frameFromRows unions row keys into a sorted column list so frames built
// from JSON are deterministic.
func frameFromRows(rows []event.Row) event.Frame {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return event.NewFrame(columns, rows)
}

func frameFromCSV(r io.Reader) (event.Frame, *ingestionError) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		slog.Warn("Failed to parse CSV upload", "error", err)
		return event.Frame{}, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidCsvError,
			message:    msgInvalidCSV,
		}
	}
	if len(records) < 2 {
		return event.Frame{}, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidCsvError,
			message:    msgEmptyCSV,
		}
	}

	columns := records[0]
	rows := make([]event.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(event.Row, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return event.NewFrame(columns, rows), nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
