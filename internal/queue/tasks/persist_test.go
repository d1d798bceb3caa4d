package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/models"
	"github.com/umlstudio/engine/internal/realtime"
	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) SaveDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) (*models.RoomDiagram, bool, error) {
	args := m.Called(ctx, roomID, state, author)
	if v := args.Get(0); v != nil {
		return v.(*models.RoomDiagram), args.Bool(1), args.Error(2)
	}
	return nil, false, args.Error(2)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

var bob = realtime.UserInfo{UserID: "u2", UserName: "bob"}

func classDiagram() diagram.State {
	return diagram.AddClass(diagram.Empty(), diagram.Class{ID: "c1", Name: "Order", Width: 200, Height: 150})
}

func TestPersistTaskRoundTrip(t *testing.T) {
	task, err := NewPersistTask("r1", classDiagram(), bob)
	require.NoError(t, err)
	assert.Equal(t, TypeDiagramPersist, task.Type())

	saver := new(mockSaver)
	saver.On("SaveDiagram", mock.Anything, "r1", mock.MatchedBy(func(s diagram.State) bool {
		return len(s.Classes) == 1 && s.Classes[0].Name == "Order"
	}), bob).Return(&models.RoomDiagram{Version: 4}, true, nil)

	require.NoError(t, NewPersistTaskHandler(saver).HandlePersist(context.Background(), task))
	saver.AssertExpectations(t)
}

func TestPersistTaskSkipsRetryOnBadPayload(t *testing.T) {
	h := NewPersistTaskHandler(new(mockSaver))
	cases := map[string]string{
		"not json":   `{`,
		"no room":    `{"diagram":{"classes":[]}}`,
		"no classes": `{"room_id":"r1","diagram":{"notes":[]}}`,
		"not object": `{"room_id":"r1","diagram":[1]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.HandlePersist(context.Background(), asynq.NewTask(TypeDiagramPersist, []byte(payload)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestPersistTaskRetriesStoreErrors(t *testing.T) {
	task, err := NewPersistTask("r1", classDiagram(), bob)
	require.NoError(t, err)

	saver := new(mockSaver)
	saver.On("SaveDiagram", mock.Anything, "r1", mock.Anything, bob).
		Return(nil, false, appErr.New(appErr.CodeInternal, "db down"))

	err = NewPersistTaskHandler(saver).HandlePersist(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestEnqueuerSendsPersistTask(t *testing.T) {
	client := new(mockEnqueuer)
	var sent *asynq.Task
	client.On("EnqueueContext", mock.Anything, mock.AnythingOfType("*asynq.Task")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*asynq.Task) }).
		Return(&asynq.TaskInfo{ID: "t1"}, nil)

	require.NoError(t, NewEnqueuer(client).PersistDiagram(context.Background(), "r1", classDiagram(), bob))

	require.NotNil(t, sent)
	var p PersistPayload
	require.NoError(t, json.Unmarshal(sent.Payload(), &p))
	assert.Equal(t, "r1", p.RoomID)
	assert.Equal(t, bob, p.Author)
	assert.Contains(t, string(p.Diagram), `"Order"`)
}

func TestEnqueuerReportsUnavailable(t *testing.T) {
	client := new(mockEnqueuer)
	client.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	err := NewEnqueuer(client).PersistDiagram(context.Background(), "r1", classDiagram(), bob)
	assert.True(t, appErr.IsCode(err, appErr.CodeUnavailable))
}
