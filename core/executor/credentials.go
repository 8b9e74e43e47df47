package executor

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"costplan/internal/errors"
)

// Credentials must never outlive an execution.
const credentialDuration = 15 * time.Minute

// STSAPI is the subset of the STS client the broker needs.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// CredentialBroker exchanges credential references for short-lived
// credentials exposed to subprocesses as environment variables only.
type CredentialBroker struct {
	client STSAPI
	roles  map[string]string
}

// NewCredentialBroker creates a broker over a role-name to role-ARN map.
func NewCredentialBroker(client STSAPI, roles map[string]string) *CredentialBroker {
	return &CredentialBroker{client: client, roles: roles}
}

// Resolve turns a reference of the form "assume-role:<name>" into
// subprocess environment variables. Anything else, including raw
// credentials, is refused. An empty reference resolves to no extra
// environment.
func (b *CredentialBroker) Resolve(ctx context.Context, reference string) ([]string, error) {
	if reference == "" {
		return nil, nil
	}

	name, ok := strings.CutPrefix(reference, "assume-role:")
	if !ok {
		return nil, errors.Security("credential reference must use the assume-role form")
	}

	roleARN, ok := b.roles[name]
	if !ok {
		return nil, errors.NotFound("credential role", name)
	}

	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String("costplan-" + uuid.NewString()[:8]),
		DurationSeconds: aws.Int32(int32(credentialDuration.Seconds())),
	})
	if err != nil {
		return nil, errors.Upstream("assuming role", err).WithContext("role", name)
	}
	if out.Credentials == nil {
		return nil, errors.Internal("assume role returned no credentials", nil)
	}

	return []string{
		"AWS_ACCESS_KEY_ID=" + aws.ToString(out.Credentials.AccessKeyId),
		"AWS_SECRET_ACCESS_KEY=" + aws.ToString(out.Credentials.SecretAccessKey),
		"AWS_SESSION_TOKEN=" + aws.ToString(out.Credentials.SessionToken),
	}, nil
}
