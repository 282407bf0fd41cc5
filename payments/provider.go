package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

type Order struct {
	Reference   string `json:"order_reference"`
	Token       string `json:"token,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Provider creates payment intents on the external gateway. Signatures for the
// resulting callbacks are checked locally with VerifySignature.
type Provider interface {
	CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Order, error)
}

func newOrderReference() string {
	return "ORD-" + uuid.NewString()
}

type MidtransProvider struct {
	client snap.Client
}

func NewMidtransProvider(serverKey string, production bool) *MidtransProvider {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	var s snap.Client
	s.New(serverKey, env)
	return &MidtransProvider{client: s}
}

func (p *MidtransProvider) CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Order, error) {
	ref := newOrderReference()
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  ref,
			GrossAmt: amount,
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    metadata["booking_id"],
				Name:  metadata["description"],
				Price: amount,
				Qty:   1,
			},
		},
	}

	resp, errSnap := p.client.CreateTransaction(req)
	if errSnap != nil {
		slog.Error("midtrans create transaction failed", "order_reference", ref, "error", errSnap.GetMessage())
		return nil, fmt.Errorf("create provider order: %s", errSnap.GetMessage())
	}

	slog.Info("provider order created", "order_reference", ref, "amount", amount, "currency", currency)
	return &Order{Reference: ref, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// OfflineProvider issues references without contacting a gateway. It is used
// when no provider key is configured and in tests.
type OfflineProvider struct{}

func (OfflineProvider) CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Order, error) {
	return &Order{Reference: newOrderReference()}, nil
}
