package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/backend/api"
	"github.com/grovetools/rulesync/pkg/backend/mocks"
	"github.com/grovetools/rulesync/version"
	"github.com/grovetools/rulesync/pkg/models"
)

func newTestServer(t *testing.T, mock *mocks.MockBackend) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(mock, logging.NewLogger("test-server")).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorBody {
	t.Helper()
	defer resp.Body.Close()
	var body api.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, mocks.NewMockBackend())
	resp, err := http.Get(ts.URL + api.PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var info version.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, version.Version, info.Version)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", errors.NotFound("Rule/x"), http.StatusNotFound},
		{"already exists", errors.AlreadyExists("Rule/x"), http.StatusConflict},
		{"missing name", errors.MissingName("Rule"), http.StatusBadRequest},
		{"invalid resource", errors.InvalidResource("bad"), http.StatusBadRequest},
		{"plain error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := mocks.NewMockBackend()
			mock.GetResourceFunc = func(ctx context.Context, kind models.Kind, name string) (*models.Resource, error) {
				return nil, tt.err
			}
			ts := newTestServer(t, mock)

			resp, err := http.Get(ts.URL + api.PathResources + "/Rule/x")
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decodeError(t, resp)
			if code := errors.GetCode(tt.err); code != "" {
				assert.Equal(t, code, body.Code)
			} else {
				assert.Equal(t, errors.ErrCodeBackendFailed, body.Code)
			}
		})
	}
}

func TestInvalidKind(t *testing.T) {
	mock := mocks.NewMockBackend()
	ts := newTestServer(t, mock)

	resp, err := http.Get(ts.URL + api.PathResources + "/Secret/x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeInvalidInput, decodeError(t, resp).Code)
	assert.Zero(t, mock.CallCount("GetResource"))
}

func TestInvalidBody(t *testing.T) {
	ts := newTestServer(t, mocks.NewMockBackend())
	resp, err := http.Post(ts.URL+api.PathGitCommit, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeInvalidInput, decodeError(t, resp).Code)
}

func TestCreateResourceStatus(t *testing.T) {
	mock := mocks.NewMockBackend()
	ts := newTestServer(t, mock)

	body := `{"kind":"Rule","name":"invoices","yaml":"kind: Rule\n"}`
	resp, err := http.Post(ts.URL+api.PathResources, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var res models.Resource
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, models.KindRule, res.Kind)
}

func TestCommitNoContent(t *testing.T) {
	mock := mocks.NewMockBackend()
	ts := newTestServer(t, mock)

	resp, err := http.Post(ts.URL+api.PathGitCommit, "application/json", strings.NewReader(`{"message":"m","files":["a.yaml"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, mock.CallCount("GitCommit"))
}

func TestUnknownTopic(t *testing.T) {
	ts := newTestServer(t, mocks.NewMockBackend())
	resp, err := http.Get(ts.URL + api.PathEvents + "/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeNotFound, decodeError(t, resp).Code)
}
