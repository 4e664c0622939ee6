package aws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/internal/fixtures"
)

const identityDocument = `{
  "availabilityZone" : "ap-southeast-2b",
  "privateIp" : "10.1.2.3",
  "instanceId" : "i-0123456789abcdef0",
  "instanceType" : "m5.large",
  "region" : "ap-southeast-2"
}`

type mockedEC2 struct {
	ec2iface.EC2API
	err       error
	instances []*ec2.Instance
	inputs    []*ec2.DescribeInstancesInput
}

func (m *mockedEC2) DescribeInstancesPagesWithContext(ctx aws.Context, input *ec2.DescribeInstancesInput, fn func(*ec2.DescribeInstancesOutput, bool) bool, opts ...request.Option) error {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return m.err
	}
	fn(&ec2.DescribeInstancesOutput{
		Reservations: []*ec2.Reservation{{Instances: m.instances}},
	}, true)
	return nil
}

func newMetadataServer(t *testing.T) *ec2metadata.EC2Metadata {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/api/token"):
			w.Header().Set("X-Aws-Ec2-Metadata-Token-Ttl-Seconds", "21600")
			_, _ = w.Write([]byte("token"))
		case strings.HasSuffix(r.URL.Path, "/dynamic/instance-identity/document"):
			_, _ = w.Write([]byte(identityDocument))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	sess, err := session.NewSession(aws.NewConfig().WithMaxRetries(0))
	require.NoError(t, err)
	return ec2metadata.New(sess, aws.NewConfig().WithEndpoint(srv.URL+"/latest"))
}

func TestSelfInstanceFromMetadata(t *testing.T) {
	t.Parallel()
	p := NewProvider(fixtures.NewTestLogger(t), newMetadataServer(t), nil, nil)

	instance, err := p.SelfInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &cwstatsd.Instance{
		ID:               "i-0123456789abcdef0",
		Region:           "ap-southeast-2",
		AvailabilityZone: "ap-southeast-2b",
		Type:             "m5.large",
		PrivateIP:        "10.1.2.3",
	}, instance)
}

func TestSelfInstanceWithTags(t *testing.T) {
	t.Parallel()
	mock := &mockedEC2{
		instances: []*ec2.Instance{{
			InstanceId: aws.String("i-0123456789abcdef0"),
			Tags: []*ec2.Tag{
				{Key: aws.String(cwstatsd.AutoScalingGroupTag), Value: aws.String("web")},
				{Key: aws.String("Name"), Value: aws.String("web-1")},
			},
		}},
	}
	p := NewProvider(fixtures.NewTestLogger(t), newMetadataServer(t), mock, nil)

	instance, err := p.SelfInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "web", instance.AutoScalingGroup())
	assert.Equal(t, "web-1", instance.Tags["Name"])

	require.Len(t, mock.inputs, 1)
	require.Len(t, mock.inputs[0].Filters, 1)
	assert.Equal(t, "instance-id", *mock.inputs[0].Filters[0].Name)
	assert.Equal(t, "i-0123456789abcdef0", *mock.inputs[0].Filters[0].Values[0])
}

func TestSelfInstanceEventualConsistency(t *testing.T) {
	t.Parallel()
	mock := &mockedEC2{err: awserr.New("InvalidInstanceID.NotFound", "not found", nil)}
	p := NewProvider(fixtures.NewTestLogger(t), newMetadataServer(t), mock, nil)

	instance, err := p.SelfInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "i-0123456789abcdef0", instance.ID)
	assert.Empty(t, instance.Tags)
}

func TestSelfInstanceLookupError(t *testing.T) {
	t.Parallel()
	mock := &mockedEC2{err: awserr.New("UnauthorizedOperation", "denied", nil)}
	p := NewProvider(fixtures.NewTestLogger(t), newMetadataServer(t), mock, nil)

	_, err := p.SelfInstance(context.Background())
	require.Error(t, err)
}

func TestAzToRegion(t *testing.T) {
	t.Parallel()
	region, err := azToRegion("us-west-2a")
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", region)

	_, err = azToRegion("")
	assert.Error(t, err)
}

func TestIsEventualConsistencyErr(t *testing.T) {
	t.Parallel()
	assert.True(t, isEventualConsistencyErr(awserr.New("InvalidInstanceID.NotFound", "", nil)))
	assert.False(t, isEventualConsistencyErr(awserr.New("Throttling", "", nil)))
	assert.False(t, isEventualConsistencyErr(context.Canceled))
}
