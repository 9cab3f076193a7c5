package mocks

import (
	"context"
	"sync"

	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/models"
)

// MockBackend is a mock implementation of backend.Backend for testing.
// Unset funcs return zero values. Every call is recorded by name.
type MockBackend struct {
	GetFileTreeFunc   func(ctx context.Context) (*models.FileTreeNode, error)
	GetGitStatusFunc  func(ctx context.Context) (*models.GitStatus, error)
	GetBranchesFunc   func(ctx context.Context) ([]models.BranchInfo, error)
	GetResourceFunc   func(ctx context.Context, kind models.Kind, name string) (*models.Resource, error)
	ListResourcesFunc func(ctx context.Context, kind models.Kind) ([]models.ResourceInfo, error)
	ReadRawFileFunc   func(ctx context.Context, path string) (string, error)

	CreateResourceFunc func(ctx context.Context, kind models.Kind, name, yaml, path string) (*models.Resource, error)
	UpdateResourceFunc func(ctx context.Context, kind models.Kind, name, yaml string) (*models.Resource, error)
	DeleteResourceFunc func(ctx context.Context, kind models.Kind, name string) error

	MoveFileFunc        func(ctx context.Context, src, dst string) (models.OperationResult, error)
	CreateDirectoryFunc func(ctx context.Context, path string) (models.OperationResult, error)
	DeleteFileFunc      func(ctx context.Context, path string) (models.OperationResult, error)

	GitCommitFunc       func(ctx context.Context, message string, files []string) error
	GitPullFunc         func(ctx context.Context) error
	GitCheckoutFunc     func(ctx context.Context, branch string) error
	GitCreateBranchFunc func(ctx context.Context, name string, switchTo bool) error
	GitInitializeFunc   func(ctx context.Context) (*models.InitializeResult, error)

	// Event sources backing the Subscribe* methods unless overridden.
	ConfigEvents    *backend.Broker[models.ConfigChange]
	OperationEvents *backend.Broker[models.OperationProgressEvent]
	JobEvents       *backend.Broker[models.JobEvent]

	SubscribeOperationsFunc func(ctx context.Context) (<-chan models.OperationProgressEvent, error)
	SubscribeJobsFunc       func(ctx context.Context) (<-chan models.JobEvent, error)

	mu    sync.Mutex
	calls []string
}

// NewMockBackend creates a MockBackend with live event brokers.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		ConfigEvents:    backend.NewBroker[models.ConfigChange](0),
		OperationEvents: backend.NewBroker[models.OperationProgressEvent](0),
		JobEvents:       backend.NewBroker[models.JobEvent](0),
	}
}

func (m *MockBackend) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

// Calls returns the names of the methods called so far, in order.
func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times the named method was called.
func (m *MockBackend) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// GetFileTree calls the mock function
func (m *MockBackend) GetFileTree(ctx context.Context) (*models.FileTreeNode, error) {
	m.record("GetFileTree")
	if m.GetFileTreeFunc != nil {
		return m.GetFileTreeFunc(ctx)
	}
	return &models.FileTreeNode{Name: "root", Path: "/", IsDirectory: true}, nil
}

// GetGitStatus calls the mock function
func (m *MockBackend) GetGitStatus(ctx context.Context) (*models.GitStatus, error) {
	m.record("GetGitStatus")
	if m.GetGitStatusFunc != nil {
		return m.GetGitStatusFunc(ctx)
	}
	return &models.GitStatus{}, nil
}

// GetBranches calls the mock function
func (m *MockBackend) GetBranches(ctx context.Context) ([]models.BranchInfo, error) {
	m.record("GetBranches")
	if m.GetBranchesFunc != nil {
		return m.GetBranchesFunc(ctx)
	}
	return nil, nil
}

// GetResource calls the mock function
func (m *MockBackend) GetResource(ctx context.Context, kind models.Kind, name string) (*models.Resource, error) {
	m.record("GetResource")
	if m.GetResourceFunc != nil {
		return m.GetResourceFunc(ctx, kind, name)
	}
	return &models.Resource{Kind: kind, Name: name}, nil
}

// ListResources calls the mock function
func (m *MockBackend) ListResources(ctx context.Context, kind models.Kind) ([]models.ResourceInfo, error) {
	m.record("ListResources")
	if m.ListResourcesFunc != nil {
		return m.ListResourcesFunc(ctx, kind)
	}
	return nil, nil
}

// ReadRawFile calls the mock function
func (m *MockBackend) ReadRawFile(ctx context.Context, path string) (string, error) {
	m.record("ReadRawFile")
	if m.ReadRawFileFunc != nil {
		return m.ReadRawFileFunc(ctx, path)
	}
	return "", nil
}

// CreateResource calls the mock function
func (m *MockBackend) CreateResource(ctx context.Context, kind models.Kind, name, yaml, path string) (*models.Resource, error) {
	m.record("CreateResource")
	if m.CreateResourceFunc != nil {
		return m.CreateResourceFunc(ctx, kind, name, yaml, path)
	}
	return &models.Resource{Kind: kind, Name: name, Path: path, YAML: yaml}, nil
}

// UpdateResource calls the mock function
func (m *MockBackend) UpdateResource(ctx context.Context, kind models.Kind, name, yaml string) (*models.Resource, error) {
	m.record("UpdateResource")
	if m.UpdateResourceFunc != nil {
		return m.UpdateResourceFunc(ctx, kind, name, yaml)
	}
	return &models.Resource{Kind: kind, Name: name, YAML: yaml}, nil
}

// DeleteResource calls the mock function
func (m *MockBackend) DeleteResource(ctx context.Context, kind models.Kind, name string) error {
	m.record("DeleteResource")
	if m.DeleteResourceFunc != nil {
		return m.DeleteResourceFunc(ctx, kind, name)
	}
	return nil
}

// MoveFile calls the mock function
func (m *MockBackend) MoveFile(ctx context.Context, src, dst string) (models.OperationResult, error) {
	m.record("MoveFile")
	if m.MoveFileFunc != nil {
		return m.MoveFileFunc(ctx, src, dst)
	}
	return models.OperationResult{Success: true}, nil
}

// CreateDirectory calls the mock function
func (m *MockBackend) CreateDirectory(ctx context.Context, path string) (models.OperationResult, error) {
	m.record("CreateDirectory")
	if m.CreateDirectoryFunc != nil {
		return m.CreateDirectoryFunc(ctx, path)
	}
	return models.OperationResult{Success: true}, nil
}

// DeleteFile calls the mock function
func (m *MockBackend) DeleteFile(ctx context.Context, path string) (models.OperationResult, error) {
	m.record("DeleteFile")
	if m.DeleteFileFunc != nil {
		return m.DeleteFileFunc(ctx, path)
	}
	return models.OperationResult{Success: true}, nil
}

// GitCommit calls the mock function
func (m *MockBackend) GitCommit(ctx context.Context, message string, files []string) error {
	m.record("GitCommit")
	if m.GitCommitFunc != nil {
		return m.GitCommitFunc(ctx, message, files)
	}
	return nil
}

// GitPull calls the mock function
func (m *MockBackend) GitPull(ctx context.Context) error {
	m.record("GitPull")
	if m.GitPullFunc != nil {
		return m.GitPullFunc(ctx)
	}
	return nil
}

// GitCheckout calls the mock function
func (m *MockBackend) GitCheckout(ctx context.Context, branch string) error {
	m.record("GitCheckout")
	if m.GitCheckoutFunc != nil {
		return m.GitCheckoutFunc(ctx, branch)
	}
	return nil
}

// GitCreateBranch calls the mock function
func (m *MockBackend) GitCreateBranch(ctx context.Context, name string, switchTo bool) error {
	m.record("GitCreateBranch")
	if m.GitCreateBranchFunc != nil {
		return m.GitCreateBranchFunc(ctx, name, switchTo)
	}
	return nil
}

// GitInitialize calls the mock function
func (m *MockBackend) GitInitialize(ctx context.Context) (*models.InitializeResult, error) {
	m.record("GitInitialize")
	if m.GitInitializeFunc != nil {
		return m.GitInitializeFunc(ctx)
	}
	return &models.InitializeResult{}, nil
}

// SubscribeConfigChanges subscribes to ConfigEvents.
func (m *MockBackend) SubscribeConfigChanges(ctx context.Context) (<-chan models.ConfigChange, error) {
	m.record("SubscribeConfigChanges")
	return m.ConfigEvents.Subscribe(ctx), nil
}

// SubscribeOperations subscribes to OperationEvents unless overridden.
func (m *MockBackend) SubscribeOperations(ctx context.Context) (<-chan models.OperationProgressEvent, error) {
	m.record("SubscribeOperations")
	if m.SubscribeOperationsFunc != nil {
		return m.SubscribeOperationsFunc(ctx)
	}
	return m.OperationEvents.Subscribe(ctx), nil
}

// SubscribeJobs subscribes to JobEvents unless overridden.
func (m *MockBackend) SubscribeJobs(ctx context.Context) (<-chan models.JobEvent, error) {
	m.record("SubscribeJobs")
	if m.SubscribeJobsFunc != nil {
		return m.SubscribeJobsFunc(ctx)
	}
	return m.JobEvents.Subscribe(ctx), nil
}

// IsRemote returns false.
func (m *MockBackend) IsRemote() bool { return false }

// Close closes the event brokers.
func (m *MockBackend) Close() error {
	m.ConfigEvents.Close()
	m.OperationEvents.Close()
	m.JobEvents.Close()
	return nil
}

var _ backend.Backend = (*MockBackend)(nil)
