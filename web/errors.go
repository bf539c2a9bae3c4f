package web

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	auth "github.com/txnjournal/go-txn-auth"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the text code and the localized message.
type ErrorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Decision string            `json:"decision,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (s *Server) defaultErrHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: ErrorBody{Code: http.StatusText(fiberErr.Code), Message: fiberErr.Message},
		})
	}

	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	s.Logger.Info(
		"Request error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", auth.TextCodeOf(err),
		"path", c.OriginalURL(),
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status < http.StatusBadRequest {
		status = statusFor(richErr.Category)
	}

	body := ErrorBody{
		Code:    auth.TextCodeOf(err),
		Message: s.messages.UserMessage(s.locale, err),
	}
	if body.Code == "" {
		body.Code = string(auth.AuthUnknown)
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		body.Fields = fieldErrors(fields)
	}
	return c.Status(status).JSON(ErrorResponse{Error: body})
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func invalidPayload(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request payload").
		WithTextCode(auth.TextCodeInvalidInput).
		WithCode(goerrors.CodeBadRequest)
}

func fieldErrors(errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		if err != nil {
			out[field] = err.Error()
		}
	}
	return out
}
