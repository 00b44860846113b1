package configprovider

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/latticekv/cbcore/pkg/cbconfig"
	"github.com/latticekv/cbcore/pkg/clusterview"
	"github.com/stretchr/testify/require"
)

func TestApplyDocumentInstallsNewerRevision(t *testing.T) {
	view := clusterview.New(nil)
	doc := []byte(`{"rev": 5, "nodesExt": [{"hostname": "node-1", "services": {"kv": 11210}}]}`)

	require.NoError(t, ApplyDocument(view, doc, "node-1", false))
	require.Equal(t, uint64(5), view.Revision())

	require.NoError(t, ApplyDocument(view, []byte(`{"rev": 3}`), "node-1", false))
	require.Equal(t, uint64(5), view.Revision(), "stale revision must not regress the view")
}

func TestProviderRefreshNowUsesHTTPPollFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rev": 9, "nodesExt": [{"hostname": "node-1", "services": {"kv": 11210}}]}`))
	}))
	defer srv.Close()

	view := clusterview.New(nil)
	p := New(Config{
		View:          view,
		Cfg:           cbconfig.Default(),
		BootstrapHost: "node-1",
		ManagementURL: srv.URL,
	})

	require.NoError(t, p.RefreshNow(t.Context()))
	require.Equal(t, uint64(9), view.Revision())
}
