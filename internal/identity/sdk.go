package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/alfdav/tempfox/internal/credential"
)

// DefaultRegion keeps the STS client functional when no region was supplied;
// get-caller-identity is region-agnostic.
const DefaultRegion = "us-east-1"

// SDKVerifier calls sts.GetCallerIdentity in-process through the AWS SDK.
// Used when the aws CLI is not installed, or when forced by flag. SDK error
// text flows through the same classifier as CLI stderr.
type SDKVerifier struct {
	Region     string
	Timeout    time.Duration
	Classifier Classifier
}

func (v *SDKVerifier) Verify(ctx context.Context, cred credential.Credential) (*Result, error) {
	region := v.Region
	if region == "" {
		region = DefaultRegion
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cred.AccessKeyID,
			cred.SecretAccessKey,
			cred.SessionToken,
		)),
	)
	if err != nil {
		return nil, &VerifyError{Kind: KindToolError, Message: excerpt(err.Error())}
	}

	slog.Debug("invoking identity check via SDK", "region", region, "access_key", credential.MaskKeyID(cred.AccessKeyID))
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &VerifyError{Kind: KindToolTimeout, Message: "identity check timed out"}
		}
		return nil, v.Classifier.Classify(1, err.Error())
	}

	return &Result{
		Account: aws.ToString(out.Account),
		Arn:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}
