package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestTaskTypeItsmSync_Constant(t *testing.T) {
	if TaskTypeItsmSync != "itsm:sync" {
		t.Errorf("TaskTypeItsmSync = %q, expected %q", TaskTypeItsmSync, "itsm:sync")
	}
}

func TestSyncTask_JSON(t *testing.T) {
	appID := uint(7)
	data, err := json.Marshal(&SyncTask{TeamID: 3, UserID: 9, FallbackApplicationID: &appID})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	expected := `{"team_id":3,"user_id":9,"fallback_application_id":7}`
	if string(data) != expected {
		t.Errorf("payload = %s, expected %s", data, expected)
	}

	data, _ = json.Marshal(&SyncTask{TeamID: 3, UserID: 9})
	if string(data) != `{"team_id":3,"user_id":9}` {
		t.Errorf("payload without fallback = %s", data)
	}
}

func TestSyncQueue_New(t *testing.T) {
	queue := NewSyncQueue()
	if queue == nil {
		t.Error("NewSyncQueue should not return nil")
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	queue := NewSyncQueue()
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}
}

func TestSyncQueue_Close(t *testing.T) {
	queue := NewSyncQueue()
	err := queue.Close()
	if err != nil {
		t.Errorf("SyncQueue.Close() should return nil, got %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()
	err := queue.Enqueue(&SyncTask{TeamID: 1, UserID: 1})
	if err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
}

func TestSyncQueue_EnqueueRunsProcessor(t *testing.T) {
	queue := NewSyncQueue()
	got := make(chan *SyncTask, 1)
	queue.SetProcessor(func(ctx context.Context, task *SyncTask) error {
		got <- task
		return nil
	})

	if err := queue.Enqueue(&SyncTask{TeamID: 4, UserID: 2}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case task := <-got:
		if task.TeamID != 4 || task.UserID != 2 {
			t.Errorf("processed task = %+v, expected team 4 user 2", task)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor was not called")
	}
}

func TestAsyncQueue_IsAsync(t *testing.T) {
	queue := &AsyncQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncQueue.IsAsync() should return true")
	}
}
