package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/lnsim/ln-network-runner/utils/constants"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()
	require := require.New(t)

	s, err := New(Config{
		Port:            "127.0.0.1:0",
		GwDisabled:      true,
		DialTimeout:     10 * time.Second,
		SimulatedImages: []string{constants.DefaultBitcoinImage, constants.DefaultLightningImage},
	}, zap.NewNop())
	require.NoError(err)
	srv := s.(*server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(err)

	ts := httptest.NewServer(newGateway(rpcpb.NewControlServiceClient(conn), srv.promRegistry, zap.NewNop()))
	t.Cleanup(func() {
		ts.Close()
		_ = conn.Close()
		cancel()
		<-done
	})
	return ts
}

func do(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGateway(t *testing.T) {
	require := require.New(t)
	ts := newTestGateway(t)
	base := ts.URL + "/v1"

	ping := &rpcpb.PingResponse{}
	require.Equal(http.StatusOK, do(t, "GET", base+"/ping", nil, ping))
	require.NotZero(ping.Pid)

	created := &rpcpb.CreateResponse{}
	require.Equal(http.StatusCreated, do(t, "POST", base+"/networks", &rpcpb.CreateRequest{Name: "alpha"}, created))
	require.Equal("alpha", created.Network.Name)
	require.Equal("Stopped", created.Network.Status)
	id := created.Network.Id
	path := base + "/networks/" + jsonID(id)

	started := &rpcpb.StartResponse{}
	require.Equal(http.StatusOK, do(t, "POST", path+"/start", nil, started))
	require.Equal("Started", started.Network.Status)

	httpErr := &HTTPError{}
	require.Equal(http.StatusConflict, do(t, "POST", path+"/start", nil, httpErr))
	require.Equal("FailedPrecondition", httpErr.Status)
	require.True(strings.HasPrefix(httpErr.Message, "network is already running"))

	require.Equal(http.StatusConflict, do(t, "DELETE", path, nil, &HTTPError{}))

	require.Equal(http.StatusOK, do(t, "POST", path+"/stop", nil, &rpcpb.StopResponse{}))

	renamed := &rpcpb.RenameResponse{}
	require.Equal(http.StatusOK, do(t, "POST", path+"/rename", map[string]string{"name": "beta"}, renamed))
	require.Equal("beta", renamed.Network.Name)
	require.Equal(http.StatusBadRequest, do(t, "POST", path+"/rename", map[string]string{"name": " "}, &HTTPError{}))

	missing := &rpcpb.MissingImagesResponse{}
	require.Equal(http.StatusOK, do(t, "GET", path+"/missing-images", nil, missing))
	require.Empty(missing.Images)

	list := &rpcpb.ListResponse{}
	require.Equal(http.StatusOK, do(t, "GET", base+"/networks", nil, list))
	require.Len(list.Networks, 1)

	require.Equal(http.StatusNoContent, do(t, "DELETE", path, nil, nil))
	require.Equal(http.StatusNotFound, do(t, "GET", path, nil, &HTTPError{}))
	require.Equal(http.StatusBadRequest, do(t, "GET", base+"/networks/abc", nil, &HTTPError{}))
}

func TestGatewayMetrics(t *testing.T) {
	require := require.New(t)
	ts := newTestGateway(t)

	require.Equal(http.StatusCreated, do(t, "POST", ts.URL+"/v1/networks", &rpcpb.CreateRequest{Name: "alpha"}, &rpcpb.CreateResponse{}))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(err)
	require.Contains(buf.String(), "lnr_networks 1")
	require.Contains(buf.String(), `lnr_lifecycle_operations_total{op="create",result="ok"} 1`)
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
