package aws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/net/http2"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/util"
)

const (
	// ProviderName is the name of AWS cloud provider.
	ProviderName         = "aws"
	defaultClientTimeout = 9 * time.Second
	defaultMaxRetries    = 3
	defaultLookupTags    = true
)

// Provider describes the local EC2 instance and supplies credentials to AWS backends.
type Provider struct {
	logger logrus.FieldLogger

	Metadata *ec2metadata.EC2Metadata
	// Ec2 is used to look up the tags of the local instance.  Tags are not looked up if it is nil.
	Ec2     ec2iface.EC2API
	session *session.Session
}

// NewProvider returns a provider using the given clients.
func NewProvider(logger logrus.FieldLogger, metadata *ec2metadata.EC2Metadata, ec2api ec2iface.EC2API, sess *session.Session) *Provider {
	return &Provider{
		logger:   logger,
		Metadata: metadata,
		Ec2:      ec2api,
		session:  sess,
	}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return ProviderName
}

// Session returns an AWS session holding the instance credentials and region.
func (p *Provider) Session() *session.Session {
	return p.session
}

// SelfInstance returns the identity of the local instance from the instance metadata service, and its tags
// from EC2 if enabled.
func (p *Provider) SelfInstance(ctx context.Context) (*cwstatsd.Instance, error) {
	identityDoc, err := p.Metadata.GetInstanceIdentityDocument()
	if err != nil {
		return nil, fmt.Errorf("error getting instance identity document: %w", err)
	}
	instance := instanceFromDocument(identityDoc)
	if instance.Region == "" {
		region, err := azToRegion(instance.AvailabilityZone)
		if err != nil {
			p.logger.Errorf("Error getting instance region: %v", err)
		}
		instance.Region = region
	}

	if p.Ec2 == nil {
		return instance, nil
	}
	tags, err := p.lookupTags(ctx, instance.ID)
	if err != nil {
		// Avoid failing startup if instance id is not visible yet due to eventual consistency.
		// https://docs.aws.amazon.com/AWSEC2/latest/APIReference/errors-overview.html#CommonErrors
		if !isEventualConsistencyErr(err) {
			return nil, fmt.Errorf("error looking up tags of instance %s: %w", instance.ID, err)
		}
		p.logger.WithField("instance", instance.ID).Warn("Local instance not visible in EC2 yet, continuing without tags")
	}
	instance.Tags = tags

	p.logger.WithFields(logrus.Fields{
		"instance": instance.ID,
		"region":   instance.Region,
		"tags":     len(instance.Tags),
	}).Info("Discovered local instance")
	return instance, nil
}

func (p *Provider) lookupTags(ctx context.Context, instanceID string) (map[string]string, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("instance-id"),
				Values: []*string{aws.String(instanceID)},
			},
		},
	}

	var tags map[string]string
	p.logger.Debugf("Looking up tags for local instance ID %v", instanceID)
	err := p.Ec2.DescribeInstancesPagesWithContext(ctx, input, func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
		reservationCount := len(page.Reservations)
		if reservationCount == 0 {
			return true
		}
		if reservationCount > 1 {
			p.logger.WithField("instance", instanceID).Warnf("Found more than one reservation for local instance ID %v. Using first.", instanceID)
		}
		reservation := page.Reservations[0]
		if len(reservation.Instances) == 0 {
			return true
		}
		if len(reservation.Instances) > 1 {
			p.logger.WithFields(logrus.Fields{
				"instance":      instanceID,
				"reservationId": aws.StringValue(reservation.ReservationId),
			}).Warnf("Found more than one instance for local instance ID %v. Using first.", instanceID)
		}
		tags = tagsFromInstance(reservation.Instances[0])
		return false
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func instanceFromDocument(doc ec2metadata.EC2InstanceIdentityDocument) *cwstatsd.Instance {
	return &cwstatsd.Instance{
		ID:               doc.InstanceID,
		Region:           doc.Region,
		AvailabilityZone: doc.AvailabilityZone,
		Type:             doc.InstanceType,
		PrivateIP:        cwstatsd.IP(doc.PrivateIP),
	}
}

func tagsFromInstance(instance *ec2.Instance) map[string]string {
	tags := make(map[string]string, len(instance.Tags))
	for _, tag := range instance.Tags {
		tags[aws.StringValue(tag.Key)] = aws.StringValue(tag.Value)
	}
	return tags
}

// Derives the region from a valid az name.
// Returns an error if the az is known invalid (empty).
func azToRegion(az string) (string, error) {
	if az == "" {
		return "", errors.New("invalid (empty) AZ")
	}
	region := az[:len(az)-1]
	return region, nil
}

func isEventualConsistencyErr(err error) bool {
	var awsErr awserr.Error
	if errors.As(err, &awsErr) && awsErr.Code() == "InvalidInstanceID.NotFound" {
		return true
	}
	return false
}

// NewProviderFromViper returns a new aws provider.
func NewProviderFromViper(v *viper.Viper, logger logrus.FieldLogger) (cwstatsd.HostProvider, error) {
	a := util.GetSubViper(v, ProviderName)
	a.SetDefault("max-retries", defaultMaxRetries)
	a.SetDefault("client-timeout", defaultClientTimeout)
	a.SetDefault("lookup-tags", defaultLookupTags)
	httpTimeout := a.GetDuration("client-timeout")
	if httpTimeout <= 0 {
		return nil, errors.New("client timeout must be positive")
	}

	// This is the main config without credentials.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 3 * time.Second,
		TLSClientConfig: &tls.Config{
			// Can't use SSLv3 because of POODLE and BEAST
			// Can't use TLSv1.0 because of POODLE and BEAST using CBC cipher
			// Can't use TLSv1.1 because of RC4 cipher usage
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    50,
		IdleConnTimeout: 1 * time.Minute,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, err
	}
	sharedConfig := aws.NewConfig().
		WithHTTPClient(&http.Client{
			Transport: transport,
			Timeout:   httpTimeout,
		}).
		WithMaxRetries(a.GetInt("max-retries"))
	metadataSession, err := session.NewSession(sharedConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating a new Metadata session: %v", err)
	}
	metadata := ec2metadata.New(metadataSession)
	region, err := metadata.Region()
	if err != nil {
		return nil, fmt.Errorf("error getting AWS region: %v", err)
	}
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvProvider{},
		&credentials.SharedCredentialsProvider{},
		&ec2rolecreds.EC2RoleProvider{Client: metadata},
	})
	regionConfig := sharedConfig.Copy().
		WithRegion(region).
		WithCredentials(creds)
	sess, err := session.NewSession(regionConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating a new AWS session: %v", err)
	}

	var ec2api ec2iface.EC2API
	if a.GetBool("lookup-tags") {
		ec2api = ec2.New(sess)
	}
	return NewProvider(logger, metadata, ec2api, sess), nil
}
