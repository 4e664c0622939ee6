package static

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/util"
)

// ProviderName is the name of the static provider.
const ProviderName = "static"

// Provider describes the host from configuration, for hosts without a metadata service.
type Provider struct {
	instance cwstatsd.Instance
}

// NewProviderFromViper returns a provider configured from the static section of v.
func NewProviderFromViper(v *viper.Viper, logger logrus.FieldLogger) (cwstatsd.HostProvider, error) {
	s := util.GetSubViper(v, ProviderName)
	s.SetDefault("instance-id", "")
	s.SetDefault("region", "")
	s.SetDefault("availability-zone", "")
	s.SetDefault("instance-type", "")
	s.SetDefault("private-ip", "")
	s.SetDefault("tags", map[string]string{})

	instance := cwstatsd.Instance{
		ID:               s.GetString("instance-id"),
		Region:           s.GetString("region"),
		AvailabilityZone: s.GetString("availability-zone"),
		Type:             s.GetString("instance-type"),
		PrivateIP:        cwstatsd.IP(s.GetString("private-ip")),
		Tags:             s.GetStringMapString("tags"),
	}
	if instance.ID == "" {
		return nil, errors.New("static provider requires instance-id")
	}
	logger.WithField("instance", instance.ID).Info("Using static instance description")
	return NewProvider(instance), nil
}

// NewProvider returns a provider that always describes instance.
func NewProvider(instance cwstatsd.Instance) *Provider {
	return &Provider{instance: instance}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return ProviderName
}

// SelfInstance returns a copy of the configured instance.
func (p *Provider) SelfInstance(ctx context.Context) (*cwstatsd.Instance, error) {
	instance := p.instance
	if len(p.instance.Tags) > 0 {
		instance.Tags = make(map[string]string, len(p.instance.Tags))
		for k, v := range p.instance.Tags {
			instance.Tags[k] = v
		}
	}
	return &instance, nil
}
