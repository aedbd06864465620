package paymentgateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// webhookEnvelope covers both callback shapes: the checkout event
// {"event": ..., "payload": {...}} and the older {"response": base64(json)}.
type webhookEnvelope struct {
	Event    string        `json:"event"`
	Payload  *orderPayload `json:"payload"`
	Response string        `json:"response"`
}

type orderPayload struct {
	MerchantOrderID string          `json:"merchantOrderId"`
	OrderID         string          `json:"orderId"`
	State           string          `json:"state"`
	Amount          int64           `json:"amount"`
	PaymentDetails  []paymentDetail `json:"paymentDetails"`
}

type paymentDetail struct {
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
}

type legacyCallback struct {
	Code string `json:"code"`
	Data struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
	} `json:"data"`
}

func decodeWebhook(rawBody []byte) (*domain.GatewayEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("decoding webhook body: %w", err)
	}

	switch {
	case env.Payload != nil:
		p := env.Payload
		return &domain.GatewayEvent{
			Type:            env.Event,
			MerchantOrderID: p.MerchantOrderID,
			OrderID:         p.OrderID,
			State:           mapState(p.State),
			TransactionID:   p.lastTransactionID(),
			AmountPaise:     p.Amount,
		}, nil

	case env.Response != "":
		decoded, err := base64.StdEncoding.DecodeString(env.Response)
		if err != nil {
			return nil, fmt.Errorf("decoding webhook response: %w", err)
		}
		var cb legacyCallback
		if err := json.Unmarshal(decoded, &cb); err != nil {
			return nil, fmt.Errorf("decoding webhook response: %w", err)
		}
		state := mapState(cb.Data.State)
		if cb.Data.State == "" {
			state = mapState(cb.Code)
		}
		return &domain.GatewayEvent{
			Type:            cb.Code,
			MerchantOrderID: cb.Data.MerchantTransactionID,
			State:           state,
			TransactionID:   cb.Data.TransactionID,
			AmountPaise:     cb.Data.Amount,
		}, nil
	}
	return nil, errors.New("webhook body has neither payload nor response")
}

func (p *orderPayload) lastTransactionID() string {
	if n := len(p.PaymentDetails); n > 0 {
		return p.PaymentDetails[n-1].TransactionID
	}
	return ""
}

// mapState folds the gateway's order and payment codes into the local order status.
func mapState(s string) domain.PaymentOrderStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMPLETED", "SUCCESS", "PAYMENT_SUCCESS":
		return domain.PaymentOrderStatusSuccess
	case "FAILED", "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT", "EXPIRED":
		return domain.PaymentOrderStatusFailed
	}
	return domain.PaymentOrderStatusPending
}
