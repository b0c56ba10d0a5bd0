package domain

import "context"

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}
