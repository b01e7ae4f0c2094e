package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/utils"
)

var validate = validator.New()

// ErrorHandler renders every error as the storefront envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Something went wrong. Please try again later."

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	} else {
		log.Error().Err(err).Str("component", "http").Str("path", c.Path()).Msg("unhandled error")
	}

	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

// bind parses the body into dst and runs its validate tags.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fiber.NewError(fiber.StatusBadRequest, describeValidation(verrs))
		}
		return fiber.NewError(fiber.StatusBadRequest, utils.MsgValidation)
	}
	return nil
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			parts = append(parts, fmt.Sprintf("%s must be a valid email", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}

// upstreamError turns a failed API call into a shopper-facing error that
// keeps the upstream status where there is one.
func upstreamError(err error, fallback string) error {
	status := fiber.StatusBadGateway
	var apiErr *services.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 {
		status = apiErr.Status
	}
	var netErr *services.NetworkError
	if errors.As(err, &netErr) {
		status = fiber.StatusServiceUnavailable
	}
	return fiber.NewError(status, utils.FormatError(err, fallback))
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}
