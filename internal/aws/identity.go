package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
)

// CallerIdentity describes the principal the scan runs as
type CallerIdentity struct {
	Account string
	ARN     string
}

// GetCallerIdentity resolves the account and ARN behind the session credentials
func GetCallerIdentity(ctx context.Context, client stsiface.STSAPI) (CallerIdentity, error) {
	out, err := client.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return CallerIdentity{}, fmt.Errorf("failed to get caller identity: %w", err)
	}
	if out.Account == nil {
		return CallerIdentity{}, fmt.Errorf("account ID is nil")
	}
	return CallerIdentity{
		Account: aws.StringValue(out.Account),
		ARN:     aws.StringValue(out.Arn),
	}, nil
}
