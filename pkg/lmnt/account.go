package lmnt

import (
	"context"
	"net/http"
)

// AccountService provides account information.
type AccountService struct {
	client *Client
}

func newAccountService(client *Client) *AccountService {
	return &AccountService{client: client}
}

// Get returns the plan and usage of the account.
func (s *AccountService) Get(ctx context.Context) (*Account, error) {
	var account Account
	err := s.client.http.request(ctx, call{
		op:     "Account.Get",
		method: http.MethodGet,
		path:   "/v1/account",
	}, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
