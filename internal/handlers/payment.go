package handlers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/checkoutflow"
	"github.com/example/aura-storefront/internal/payment"
	"github.com/example/aura-storefront/internal/utils"
)

const fallbackPaymentError = "Payment was not completed. Please try again."

// PaymentHandler reads the query the gateway round trip lands with.
type PaymentHandler struct{}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler() *PaymentHandler {
	return &PaymentHandler{}
}

func returnQuery(c *fiber.Ctx) url.Values {
	q := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		q.Add(string(k), string(v))
	})
	return q
}

// Failure formats the reason a payment failed for display.
func (h *PaymentHandler) Failure(c *fiber.Ctx) error {
	params := payment.ParseReturn(returnQuery(c))

	message := fallbackPaymentError
	if params.Error != "" {
		message = utils.FormatError(errors.New(params.Error), fallbackPaymentError)
	}
	return ok(c, fiber.Map{
		"orderId": params.OrderID,
		"message": message,
	})
}

// Success points the shopper at the confirmation route. The signed data is
// echoed for display only; the order API settles the payment.
func (h *PaymentHandler) Success(c *fiber.Ctx) error {
	params := payment.ParseReturn(returnQuery(c))
	if params.OrderID == "" && params.Data == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing payment reference")
	}

	data := fiber.Map{"orderId": params.OrderID}
	if params.Data != "" {
		decoded, err := payment.DecodeSuccessData(params.Data)
		if err != nil {
			log.Warn().Err(err).Str("component", "payment").Msg("undecodable success data")
		} else {
			data["transaction"] = decoded
			if params.OrderID == "" {
				params.OrderID = decoded.TransactionUUID
				data["orderId"] = params.OrderID
			}
		}
	}
	if params.OrderID != "" {
		data["confirmationUrl"] = checkoutflow.ConfirmationURL(params.OrderID, c.Query("email"), true)
	}
	return ok(c, data)
}
