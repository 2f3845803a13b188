package mocks

import (
	"context"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/payment"

	"github.com/stretchr/testify/mock"
)

type MockPaymentVerifier struct {
	mock.Mock
}

func (m *MockPaymentVerifier) Verify(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.VerifyResult), args.Error(1)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockUserStore) GetUser(ctx context.Context, wallet string) (*model.User, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserStore) SaveUser(ctx context.Context, u *model.User) (bool, error) {
	args := m.Called(ctx, u)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) TxConsumed(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) TopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}
