package api

import (
	"errors"
	"fmt"
	"net/http"

	"filevault/internal/server/service"
	"filevault/internal/server/store"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the file vault API.
type Handler struct {
	accounts *service.AccountService
	files    *service.FileService
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(accounts *service.AccountService, files *service.FileService) *Handler {
	return &Handler{accounts: accounts, files: files}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type transferRequest struct {
	FileID         string `json:"fileId"`
	RecipientEmail string `json:"recipientEmail"`
}

type bulkTransferRequest struct {
	FileIDs        []string `json:"fileIds"`
	RecipientEmail string   `json:"recipientEmail"`
}

// HandleRegister handles POST /api/register.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid input."})
	}

	if err := h.accounts.Register(c.Request().Context(), req.Username, req.Password, req.Email, req.Mobile); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"message": "Account created successfully!"})
}

// HandleLogin handles POST /api/login.
// A successful login returns the session token used to authenticate every
// other API call.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid input."})
	}

	token, err := h.accounts.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Login successful!",
		"token":   token,
	})
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with the file in the "fileInput" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("fileInput")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "No file uploaded."})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to read uploaded file."})
	}
	defer src.Close()

	record, err := h.files.Upload(
		c.Request().Context(),
		Username(c),
		fileHeader.Filename,
		fileHeader.Header.Get(echo.HeaderContentType),
		fileHeader.Size,
		src,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "File uploaded successfully!",
		"file":    record,
	})
}

// HandleFiles handles GET /api/files.
func (h *Handler) HandleFiles(c echo.Context) error {
	records, err := h.files.List(c.Request().Context(), Username(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	if records == nil {
		records = []store.FileRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// HandleDownload handles GET /api/download/:fileId.
// Streams the blob as an attachment with the stored mimetype.
func (h *Handler) HandleDownload(c echo.Context) error {
	return h.serveBlob(c, "attachment")
}

// HandleView handles GET /api/view/:fileId.
// Streams the blob inline for in-browser preview.
func (h *Handler) HandleView(c echo.Context) error {
	return h.serveBlob(c, "inline")
}

func (h *Handler) serveBlob(c echo.Context, disposition string) error {
	record, blob, err := h.files.Open(c.Request().Context(), Username(c), c.Param("fileId"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer blob.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("%s; filename=%q", disposition, record.Name))
	return c.Stream(http.StatusOK, record.MimeType, blob)
}

// HandleDelete handles DELETE /api/delete/:fileId.
func (h *Handler) HandleDelete(c echo.Context) error {
	if err := h.files.Delete(c.Request().Context(), Username(c), c.Param("fileId")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "File deleted successfully!"})
}

// HandleTransfer handles POST /api/transfer-file.
func (h *Handler) HandleTransfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil || req.FileID == "" || req.RecipientEmail == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid input."})
	}

	msg, err := h.files.Transfer(c.Request().Context(), Username(c), req.FileID, req.RecipientEmail)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg})
}

// HandleTransferMultiple handles POST /api/transfer-multiple-files.
// Once the recipient resolves, the batch always succeeds with a summary,
// even when every item was skipped.
func (h *Handler) HandleTransferMultiple(c echo.Context) error {
	var req bulkTransferRequest
	if err := c.Bind(&req); err != nil || req.FileIDs == nil || req.RecipientEmail == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid input."})
	}

	summary, err := h.files.TransferBulk(c.Request().Context(), Username(c), req.FileIDs, req.RecipientEmail)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": summary.Message()})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "healthy"})
}

// mapServiceError translates service-layer errors into the wire format:
// a {message} body with a non-2xx status.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Username and password are required."})
	case errors.Is(err, service.ErrInvalidUsername):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Username contains invalid characters."})
	case errors.Is(err, service.ErrWeakPassword):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Password must be at least 6 characters long."})
	case errors.Is(err, service.ErrUsernameTaken):
		return c.JSON(http.StatusConflict, echo.Map{"message": "Username already exists."})
	case errors.Is(err, service.ErrEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"message": "Email already registered."})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid username or password."})
	case errors.Is(err, service.ErrDuplicateFile):
		return c.JSON(http.StatusConflict, echo.Map{"message": "Duplicate file exists. Upload aborted."})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"message": "File exceeds maximum allowed size."})
	case errors.Is(err, service.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "File not found."})
	case errors.Is(err, service.ErrRecipientNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "Recipient not found."})
	case errors.Is(err, service.ErrSelfTransfer):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Cannot transfer to yourself."})
	case errors.Is(err, service.ErrAlreadyOwned):
		return c.JSON(http.StatusConflict, echo.Map{"message": "Recipient already has this file."})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Internal server error."})
	}
}
