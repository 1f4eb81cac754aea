package daraja

import "context"

type ClientInterface interface {
	AccessToken(ctx context.Context) (string, error)
	STKPush(ctx context.Context, phoneNumber string, amountCents int64, accountReference string) (*PushResult, error)
}

var _ ClientInterface = (*Client)(nil)
