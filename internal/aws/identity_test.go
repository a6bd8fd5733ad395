package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSTSAPI struct {
	mock.Mock
	stsiface.STSAPI
}

func (m *mockSTSAPI) GetCallerIdentityWithContext(ctx aws.Context, input *sts.GetCallerIdentityInput, opts ...request.Option) (*sts.GetCallerIdentityOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*sts.GetCallerIdentityOutput)
	return out, args.Error(1)
}

func TestGetCallerIdentity(t *testing.T) {
	m := &mockSTSAPI{}
	m.On("GetCallerIdentityWithContext", mock.Anything, mock.Anything).Return(&sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/auditor"),
	}, nil)

	identity, err := GetCallerIdentity(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, CallerIdentity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/auditor"}, identity)
}

func TestGetCallerIdentityErrors(t *testing.T) {
	m := &mockSTSAPI{}
	m.On("GetCallerIdentityWithContext", mock.Anything, mock.Anything).Return(nil, errors.New("expired token")).Once()
	m.On("GetCallerIdentityWithContext", mock.Anything, mock.Anything).Return(&sts.GetCallerIdentityOutput{}, nil).Once()

	_, err := GetCallerIdentity(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get caller identity")

	_, err = GetCallerIdentity(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account ID is nil")
}
