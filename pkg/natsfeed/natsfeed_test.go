package natsfeed

import (
	"testing"

	"github.com/opendmtp/dmtp-backend/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectWithEmptyAddressIsNilNoop(t *testing.T) {
	p, err := Connect(Config{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNilPublisherPublishAndCloseAreNoop(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish(schema.EventRecord{Account: "acme", Device: "dev1"})
		p.Close()
	})
}
