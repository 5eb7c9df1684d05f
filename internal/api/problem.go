package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind perrors.Kind) int {
	switch kind {
	case perrors.KindProjectNotFound, perrors.KindTaskNotFound:
		return fiber.StatusNotFound
	case perrors.KindProjectAlreadyCompleted, perrors.KindTaskAlreadyApproved,
		perrors.KindCannotModifyApprovedTask, perrors.KindTaskNotDone,
		perrors.KindTasksNotAllDone, perrors.KindTasksNotAllApproved:
		return fiber.StatusConflict
	case perrors.KindInvalidArgument, perrors.KindInvalidState, perrors.KindMissingParameter:
		return fiber.StatusBadRequest
	case perrors.KindConfigurationError:
		return fiber.StatusServiceUnavailable
	case perrors.KindLLMGenerationError:
		return fiber.StatusBadGateway
	case perrors.KindReadOnlyFileSystem:
		return fiber.StatusInsufficientStorage
	}
	return fiber.StatusInternalServerError
}

// kindResponse renders a registry error as a problem keyed by its kind.
func kindResponse(c *fiber.Ctx, err error) error {
	kind := perrors.KindOf(err)
	if kind == "" {
		return err
	}
	status := statusForKind(kind)
	return c.Status(status).JSON(ProblemDetail{
		Type:     problemType(kind),
		Title:    utils.StatusMessage(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: c.Path(),
		Kind:     string(kind),
	})
}

// problemType converts a kind such as LLMGenerationError to
// llm_generation_error.
func problemType(kind perrors.Kind) string {
	s := string(kind)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUpper(ch) {
			prevLower := i > 0 && !isUpper(s[i-1])
			nextLower := i > 0 && i+1 < len(s) && !isUpper(s[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			ch += 'a' - 'A'
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isUpper(ch byte) bool {
	return ch >= 'A' && ch <= 'Z'
}
