package null

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
)

// BackendName is the name of this backend.
const BackendName = "null"

// client represents a discarding publisher.
type client struct{}

// NewClientFromViper constructs a null publisher.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) (cwstatsd.Publisher, error) {
	return NewClient(), nil
}

// NewClient constructs a client object.
func NewClient() cwstatsd.Publisher {
	return client{}
}

// Publish discards the snapshot.
func (client) Publish(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
	return nil
}

// Name returns the name of the backend.
func (client) Name() string {
	return BackendName
}
