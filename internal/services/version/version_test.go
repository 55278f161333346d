package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	k8stesting "k8s.io/client-go/testing"
)

func Test(t *testing.T) {
	v := version.Info{
		Major:      "1",
		Minor:      "21+",
		GitVersion: "v1.21.0",
		GitCommit:  "2812f9fb0003709fc44fc34166701b377020f1c9",
	}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := json.Marshal(v)
		if err != nil {
			t.Errorf("unexpected encoding error: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}))
	defer s.Close()
	client := kubernetes.NewForConfigOrDie(&rest.Config{Host: s.URL})

	got, err := Get(logrus.New(), client.Discovery())
	require.NoError(t, err)
	require.Equal(t, "1.21+", got.Full())
	require.Equal(t, 21, got.MinorInt())
}

func TestGet_FakeDiscovery(t *testing.T) {
	tests := map[string]struct {
		info      *version.Info
		wantMinor int
		wantErr   bool
	}{
		"plain minor": {
			info:      &version.Info{Major: "1", Minor: "33", GitVersion: "v1.33.4"},
			wantMinor: 33,
		},
		"provider suffix": {
			info:      &version.Info{Major: "1", Minor: "30+", GitVersion: "v1.30.2-eks-1"},
			wantMinor: 30,
		},
		"unparsable minor": {
			info:    &version.Info{Major: "1", Minor: "x"},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			client := &fakediscovery.FakeDiscovery{Fake: &k8stesting.Fake{}, FakedServerVersion: tt.info}

			got, err := Get(logrus.New(), client)
			if tt.wantErr {
				r.Error(err)
				return
			}
			r.NoError(err)
			r.Equal(tt.wantMinor, got.MinorInt())
			r.Equal(tt.info.GitVersion, got.(*Version).GitVersion())
		})
	}
}
