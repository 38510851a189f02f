package exporters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	for _, protocol := range []string{"", "http", "grpc"} {
		client, err := newClient(protocol, "localhost:4318")
		require.NoError(t, err, protocol)
		require.NotNil(t, client)
	}

	_, err := newClient("thrift", "localhost:4318")
	require.Error(t, err)
}
